// Command traffic_simulator drives synthetic bid traffic at a running pacing
// server. Every bought opportunity is settled with a win/lose notification so
// the full decide-reconcile loop gets exercised.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/openpacer/internal/observability"
)

var (
	server     string
	lineItem   int
	totalReq   int
	conc       int
	duration   time.Duration
	rate       float64
	winRate    float64
	tzCSV      string
	minCPM     float64
	maxCPM     float64
	maxImps    int
	stats      bool
	debug      bool
	label      string
	jitter     float64
	notifDelay time.Duration
)

var logger *zap.Logger

var httpClient *http.Client

var timezones = []string{"America/New_York", "Europe/Paris", "Asia/Tokyo"}

const statsInterval = 5 * time.Second

var (
	countSent   uint64
	countBought uint64
	countNoBuy  uint64
	countWins   uint64
	countErrors uint64
)

type bidReq struct {
	ID       string  `json:"id"`
	Timezone string  `json:"timezone"`
	CPM      float64 `json:"cpm"`
	Imps     int     `json:"imps"`
}

type bidRes struct {
	ID        string  `json:"id"`
	Timezone  string  `json:"timezone"`
	Buying    bool    `json:"buying"`
	Remaining float64 `json:"remaining"`
	Objective float64 `json:"objective"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "pacing server base URL")
	flag.IntVar(&lineItem, "li", 1, "line item ID to bid against")
	flag.IntVar(&totalReq, "requests", 1000, "total bid requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&winRate, "win-rate", 0.8, "probability a bought opportunity wins")
	flag.StringVar(&tzCSV, "timezones", "America/New_York,Europe/Paris,Asia/Tokyo", "comma-separated timezones to spread traffic over")
	flag.Float64Var(&minCPM, "min-cpm", 0.5, "minimum CPM quote")
	flag.Float64Var(&maxCPM, "max-cpm", 8.0, "maximum CPM quote")
	flag.IntVar(&maxImps, "max-imps", 10, "maximum impressions per opportunity")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.DurationVar(&notifDelay, "notif-delay", 0, "delay between a buy and its notification")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	timezones = strings.Split(tzCSV, ",")
	for i := range timezones {
		timezones[i] = strings.TrimSpace(timezones[i])
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}

	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}
		tz := timezones[r.Intn(len(timezones))]
		cpm := minCPM + r.Float64()*(maxCPM-minCPM)
		imps := r.Intn(maxImps) + 1
		win := r.Float64() < winRate
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			sendOne(tz, cpm, imps, win)
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func sendOne(tz string, cpm float64, imps int, win bool) {
	atomic.AddUint64(&countSent, 1)

	blob, err := json.Marshal(bidReq{Timezone: tz, CPM: cpm, Imps: imps})
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}

	res, err := postJSON(fmt.Sprintf("%s/li/%d/br", server, lineItem), blob)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("bid request error", zap.Error(err))
		return
	}
	var decision bidRes
	if err := json.Unmarshal(res, &decision); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(res))))
		return
	}
	if !decision.Buying {
		atomic.AddUint64(&countNoBuy, 1)
		logger.Debug("no buy", zap.String("id", decision.ID), zap.String("tz", decision.Timezone))
		return
	}
	atomic.AddUint64(&countBought, 1)

	if notifDelay > 0 {
		time.Sleep(notifDelay)
	}
	outcome := "lose"
	if win {
		outcome = "win"
	}
	notif, err := json.Marshal(map[string]string{"id": decision.ID, "outcome": outcome})
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal notif error", zap.Error(err))
		return
	}
	if _, err := postJSON(fmt.Sprintf("%s/li/%d/notif", server, lineItem), notif); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("notification error", zap.Error(err))
		return
	}
	if win {
		atomic.AddUint64(&countWins, 1)
	}
	logger.Debug("settled", zap.String("id", decision.ID), zap.String("tz", decision.Timezone), zap.String("outcome", outcome))
}

func postJSON(url string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	bought := atomic.LoadUint64(&countBought)
	nb := atomic.LoadUint64(&countNoBuy)
	wins := atomic.LoadUint64(&countWins)
	errs := atomic.LoadUint64(&countErrors)
	var buyRate float64
	if sent > 0 {
		buyRate = float64(bought) / float64(sent)
	}
	logger.Info("stats", zap.String("run", label), zap.Uint64("sent", sent), zap.Uint64("bought", bought), zap.Uint64("no_buy", nb), zap.Uint64("wins", wins), zap.Uint64("errors", errs), zap.Float64("buy_rate", buyRate))
}
