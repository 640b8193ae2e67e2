package simulation

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var tiers = []string{"standard", "premium", "exclusive"}

var titleStems = []string{
	"Expert comment on market outlook",
	"Background source for data privacy feature",
	"On-record quote about hiring trends",
	"Analysis segment on energy prices",
	"Interview on consumer credit shifts",
}

// generateOpportunities builds a synthetic batch spread over the configured
// number of outlets, with deadlines from 30 minutes to 48 hours out so both
// last-call and long-tail behavior appear in one run.
func generateOpportunities(cfg *Config) []opportunityRequest {
	out := make([]opportunityRequest, cfg.Opportunities)
	for i := range out {
		deadline := time.Now().Add(30*time.Minute + time.Duration(rand.Intn(48*60))*time.Minute)
		out[i] = opportunityRequest{
			ID:             uuid.NewString(),
			OutletID:       fmt.Sprintf("outlet-%03d", rand.Intn(cfg.Outlets)),
			Title:          fmt.Sprintf("%s #%d", titleStems[rand.Intn(len(titleStems))], i),
			Tier:           tiers[rand.Intn(len(tiers))],
			Deadline:       deadline.UTC().Format(time.RFC3339),
			InitialPrice:   100 + float64(rand.Intn(200)),
			InventoryLevel: 1 + rand.Intn(5),
		}
	}
	return out
}

// pickOpportunity favors a hot subset so some opportunities accumulate real
// signal instead of everything getting one click.
func pickOpportunity(opportunities []opportunityRequest) string {
	n := len(opportunities)
	if n == 0 {
		return ""
	}
	if rand.Float64() < 0.7 {
		return opportunities[rand.Intn(max(n/5, 1))].ID
	}
	return opportunities[rand.Intn(n)].ID
}

func generatePitch(opportunities []opportunityRequest) pitchRequest {
	statuses := []string{"active", "active", "active", "draft", "withdrawn"}
	return pitchRequest{
		ID:            uuid.NewString(),
		OpportunityID: pickOpportunity(opportunities),
		UserID:        fmt.Sprintf("expert-%04d", rand.Intn(500)),
		Status:        statuses[rand.Intn(len(statuses))],
		Successful:    rand.Float64() < 0.2,
	}
}
