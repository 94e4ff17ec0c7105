// Command fake_data seeds a running pacing server with randomly generated
// campaigns and initializes their pacing engines, so the traffic simulator
// has something to bid against.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/observability"
)

var (
	server    = flag.String("server", "http://localhost:8787", "pacing server base URL")
	campaigns = flag.Int("campaigns", 5, "number of campaigns")
	liPerCamp = flag.Int("lineitems", 3, "line items per campaign")
	firstID   = flag.Int("first-id", 1, "id assigned to the first campaign")
	minBudget = flag.Float64("min-budget", 2000, "minimum campaign budget")
	maxBudget = flag.Float64("max-budget", 20000, "maximum campaign budget")
	minDays   = flag.Int("min-days", 3, "minimum flight length in days")
	maxDays   = flag.Int("max-days", 21, "maximum flight length in days")
	seed      = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipInit  = flag.Bool("skip-init", false, "create campaigns without starting their pacing engines")
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type campaignPayload struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	TotalBudget   float64 `json:"total_budget"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	LineItemCount int     `json:"line_item_count"`
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	r := rand.New(rand.NewSource(*seed))

	created := 0
	for i := 0; i < *campaigns; i++ {
		id := *firstID + i
		c := randomCampaign(r, id)
		if err := postJSON(*server+"/campaign", c, http.StatusCreated); err != nil {
			logger.Error("create campaign", zap.Error(err), zap.Int("id", id))
			continue
		}
		if !*skipInit {
			url := fmt.Sprintf("%s/campaign/%d/init", *server, id)
			if err := postJSON(url, nil, http.StatusOK); err != nil {
				logger.Error("init campaign", zap.Error(err), zap.Int("id", id))
				continue
			}
		}
		created++
		logger.Info("campaign created",
			zap.Int("id", id),
			zap.String("name", c.Name),
			zap.Float64("budget", c.TotalBudget),
			zap.Int("line_items", c.LineItemCount))
	}

	fmt.Printf("%d of %d campaigns created\n", created, *campaigns)
}

func randomCampaign(r *rand.Rand, id int) campaignPayload {
	// start in the past so line items pace immediately
	start := time.Now().UTC().Add(-time.Duration(r.Intn(48)) * time.Hour).Truncate(24 * time.Hour)
	days := r.Intn(*maxDays-*minDays+1) + *minDays
	end := start.Add(time.Duration(days) * 24 * time.Hour)
	budget := *minBudget + r.Float64()*(*maxBudget-*minBudget)
	return campaignPayload{
		ID:            id,
		Name:          fakeCampaignName(r),
		TotalBudget:   float64(int(budget*100)) / 100,
		StartDate:     start.Format("2006-01-02"),
		EndDate:       end.Format("2006-01-02"),
		LineItemCount: *liPerCamp,
	}
}

var campaignSeasons = []string{"Spring", "Summer", "Fall", "Winter", "Holiday"}
var campaignProducts = []string{"Sale", "Launch", "Promo", "Special"}

func fakeCampaignName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s %d",
		campaignSeasons[r.Intn(len(campaignSeasons))],
		campaignProducts[r.Intn(len(campaignProducts))],
		r.Intn(100))
}

func postJSON(url string, payload interface{}, wantStatus int) error {
	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(blob)
	}
	req, err := http.NewRequest("POST", url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return nil
}
