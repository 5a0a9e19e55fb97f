package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agencyhub/models"

	"github.com/badoux/checkmail"
)

// fieldAliases maps one canonical lead attribute to the source field names it
// may arrive under. Evaluated in order; the first non-empty alias wins.
type fieldAliases struct {
	canonical string
	aliases   []string
}

var leadFieldAliases = []fieldAliases{
	{"lead_id", []string{"lead_id", "id", "leadId", "convoso_lead_id"}},
	{"external_id", []string{"external_id", "externalId", "vendor_lead_code"}},
	{"phone_number", []string{"phone_number", "phone", "phoneNumber", "primary_phone", "cell_phone"}},
	{"email", []string{"email", "email_address", "emailAddress"}},
	{"first_name", []string{"first_name", "firstName", "fname"}},
	{"last_name", []string{"last_name", "lastName", "lname"}},
	{"address", []string{"address", "address1", "street_address"}},
	{"city", []string{"city"}},
	{"state", []string{"state", "province"}},
	{"zip_code", []string{"zip_code", "zip", "postal_code", "zipCode"}},
	{"source", []string{"source", "lead_source", "list_name"}},
	{"campaign_id", []string{"campaign_id", "campaignId", "campaign"}},
	{"campaign_name", []string{"campaign_name", "campaignName"}},
	{"insurance_type", []string{"insurance_type", "insuranceType", "product_type", "vertical"}},
	{"lead_score", []string{"lead_score", "score", "leadScore", "rank"}},
	{"lead_temperature", []string{"lead_temperature", "temperature"}},
	{"priority", []string{"priority"}},
	{"cost", []string{"cost", "price", "lead_cost"}},
	{"received_at", []string{"received_at", "created_at", "entry_date", "timestamp"}},
}

// Flags that force priority=high regardless of score.
var urgencyAliases = []string{"urgent", "urgency", "life_event", "lifeEvent", "recent_life_event"}

// Temperature thresholds over the 0-100 lead score.
const (
	hotScoreThreshold  = 80
	warmScoreThreshold = 60
)

// NormalizeLead maps an arbitrary provider payload into the canonical Lead.
// Pure and total: the only failure is both lead id and phone number missing
// after alias resolution, since those two drive upsert and assignment. All
// unmapped source fields land verbatim in AdditionalData.
func NormalizeLead(payload map[string]interface{}, tenantID uint) (*models.Lead, error) {
	resolved := make(map[string]string, len(leadFieldAliases))
	consumed := make(map[string]bool, len(payload))

	for _, fa := range leadFieldAliases {
		for _, alias := range fa.aliases {
			value, ok := payload[alias]
			if !ok {
				continue
			}
			s := stringify(value)
			if s == "" {
				continue
			}
			resolved[fa.canonical] = s
			consumed[alias] = true
			break
		}
	}

	if resolved["lead_id"] == "" && resolved["phone_number"] == "" {
		return nil, ErrMissingRequiredFields("payload is missing both lead_id and phone_number")
	}

	lead := &models.Lead{
		TenantID:      tenantID,
		LeadID:        resolved["lead_id"],
		ExternalID:    resolved["external_id"],
		PhoneNumber:   resolved["phone_number"],
		FirstName:     resolved["first_name"],
		LastName:      resolved["last_name"],
		Address:       resolved["address"],
		City:          resolved["city"],
		State:         resolved["state"],
		ZipCode:       resolved["zip_code"],
		Source:        resolved["source"],
		CampaignID:    resolved["campaign_id"],
		CampaignName:  resolved["campaign_name"],
		InsuranceType: resolved["insurance_type"],
		Status:        "new",
		ReceivedAt:    time.Now(),
	}
	if lead.LeadID == "" {
		// Phone-only payloads still need a stable idempotency key.
		lead.LeadID = "phone:" + lead.PhoneNumber
	}
	if lead.Source == "" {
		lead.Source = "convoso"
	}

	// Malformed emails are demoted to the data bag rather than dropped.
	var invalidEmail string
	if email := resolved["email"]; email != "" {
		if err := checkmail.ValidateFormat(email); err == nil {
			lead.Email = email
		} else {
			invalidEmail = email
		}
	}

	if score, ok := parseScore(resolved["lead_score"]); ok {
		lead.LeadScore = score
	}
	if cost, err := strconv.ParseFloat(resolved["cost"], 64); err == nil {
		lead.Cost = cost
	}
	if ts, err := time.Parse(time.RFC3339, resolved["received_at"]); err == nil {
		lead.ReceivedAt = ts
	}

	lead.Priority = derivePriority(resolved["priority"], lead.LeadScore, payload)
	lead.LeadTemperature = deriveTemperature(resolved["lead_temperature"], lead.LeadScore)

	// Retain everything that did not map to a canonical column. The input map
	// is never written to; sync pages hand the same maps around.
	extra := make(map[string]interface{})
	for key, value := range payload {
		if !consumed[key] {
			extra[key] = value
		}
	}
	if invalidEmail != "" {
		extra["_invalid_email"] = invalidEmail
	}
	if len(extra) > 0 {
		if raw, err := json.Marshal(extra); err == nil {
			lead.AdditionalData = string(raw)
		}
	}

	return lead, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func parseScore(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	score := int(f)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, true
}

func derivePriority(explicit string, score int, payload map[string]interface{}) string {
	switch strings.ToLower(explicit) {
	case models.PriorityHigh, models.PriorityNormal:
		return strings.ToLower(explicit)
	}
	if score >= hotScoreThreshold {
		return models.PriorityHigh
	}
	for _, flag := range urgencyAliases {
		if truthy(payload[flag]) {
			return models.PriorityHigh
		}
	}
	return models.PriorityNormal
}

func deriveTemperature(explicit string, score int) string {
	switch strings.ToLower(explicit) {
	case models.TemperatureHot, models.TemperatureWarm, models.TemperatureCold:
		return strings.ToLower(explicit)
	}
	switch {
	case score >= hotScoreThreshold:
		return models.TemperatureHot
	case score >= warmScoreThreshold:
		return models.TemperatureWarm
	default:
		return models.TemperatureCold
	}
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes" || s == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}
