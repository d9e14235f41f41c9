package tables

import (
	"regexp"
	"strings"
)

// UsStates maps US state full names to their abbreviations.
var UsStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

// NormalizeUsState converts US state names to their 2-letter abbreviations.
// If the input is already an abbreviation it is upper-cased; unrecognized
// input is returned trimmed.
func NormalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	sLower := strings.ToLower(strings.TrimSuffix(s, "."))

	if code, ok := UsStates[sLower]; ok {
		return code
	}

	sUpper := strings.ToUpper(s)
	if usStateCodes[sUpper] {
		return sUpper
	}

	return s
}

var usStateCodes = func() map[string]bool {
	m := make(map[string]bool, len(UsStates))
	for _, code := range UsStates {
		m[code] = true
	}
	return m
}()

// Location is a place parsed from a free-text cell.
type Location struct {
	City  string
	State string
	Zip   string
}

var zipRegex = regexp.MustCompile(`\b(\d{5})(-\d{4})?$`)

// ParseLocation splits strings like "Dallas, TX 75201", "Dallas, Texas" or
// "Dallas TX" into parts. Missing parts are empty.
func ParseLocation(s string) Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}
	}

	var loc Location
	if m := zipRegex.FindStringSubmatchIndex(s); m != nil {
		loc.Zip = s[m[2]:m[3]]
		s = strings.TrimSpace(strings.TrimRight(s[:m[0]], ", "))
	}

	if i := strings.LastIndex(s, ","); i >= 0 {
		loc.City = strings.TrimSpace(s[:i])
		loc.State = NormalizeUsState(s[i+1:])
		return loc
	}

	// "Dallas TX": treat a trailing state code or name as the state.
	fields := strings.Fields(s)
	if n := len(fields); n > 1 {
		if st := NormalizeUsState(fields[n-1]); usStateCodes[st] {
			loc.City = strings.Join(fields[:n-1], " ")
			loc.State = st
			return loc
		}
	}

	if st := NormalizeUsState(s); usStateCodes[st] {
		loc.State = st
		return loc
	}
	loc.City = s
	return loc
}

// Load statuses.
const (
	LoadPending       = "PENDING"
	LoadAssigned      = "ASSIGNED"
	LoadEnRoutePickup = "EN_ROUTE_PICKUP"
	LoadAtPickup      = "AT_PICKUP"
	LoadDelivered     = "DELIVERED"
	LoadInvoiced      = "INVOICED"
	LoadPaid          = "PAID"
)

// LoadStatusFromText maps a free-text status cell to a load status by keyword.
// Unrecognized text maps to fallback.
func LoadStatusFromText(s, fallback string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case u == "":
		return fallback
	case strings.Contains(u, "DELIVER"):
		return LoadDelivered
	case strings.Contains(u, "INVOICE"):
		return LoadInvoiced
	case strings.Contains(u, "PAID"):
		return LoadPaid
	case strings.Contains(u, "PICK"):
		return LoadAtPickup
	case strings.Contains(u, "ROUTE"):
		return LoadEnRoutePickup
	case strings.Contains(u, "ASSIGN"), strings.Contains(u, "DISPATCH"):
		return LoadAssigned
	default:
		return fallback
	}
}

// Equipment types.
const (
	EquipDryVan    = "DRY_VAN"
	EquipReefer    = "REEFER"
	EquipFlatbed   = "FLATBED"
	EquipStepDeck  = "STEP_DECK"
	EquipPowerOnly = "POWER_ONLY"
	EquipBoxTruck  = "BOX_TRUCK"
)

// EquipmentFromText maps a free-text equipment cell to an equipment type.
// Empty or unrecognized text is a dry van.
func EquipmentFromText(s string) string {
	u := strings.ToUpper(s)
	switch {
	case strings.Contains(u, "REEFER"), strings.Contains(u, "FRIDGE"), strings.Contains(u, "TEMP"):
		return EquipReefer
	case strings.Contains(u, "FLAT"), strings.Contains(u, "BED"):
		return EquipFlatbed
	case strings.Contains(u, "STEP"):
		return EquipStepDeck
	case strings.Contains(u, "POWER"):
		return EquipPowerOnly
	case strings.Contains(u, "BOX"), strings.Contains(u, "STRAIGHT"):
		return EquipBoxTruck
	default:
		return EquipDryVan
	}
}

// Truck statuses.
const (
	TruckAvailable    = "AVAILABLE"
	TruckInUse        = "IN_USE"
	TruckMaintenance  = "MAINTENANCE"
	TruckOutOfService = "OUT_OF_SERVICE"
	TruckInactive     = "INACTIVE"
)

// TruckStatusFromText maps a free-text truck status. Unrecognized text is AVAILABLE.
func TruckStatusFromText(s string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.Contains(u, "MAINT"), strings.Contains(u, "SHOP"), strings.Contains(u, "REPAIR"):
		return TruckMaintenance
	case strings.Contains(u, "OUT OF"), strings.Contains(u, "OOS"), strings.Contains(u, "DOWN"):
		return TruckOutOfService
	case strings.Contains(u, "INACTIVE"), strings.Contains(u, "SOLD"), strings.Contains(u, "RETIRED"):
		return TruckInactive
	case strings.Contains(u, "USE"), strings.Contains(u, "ASSIGN"), strings.Contains(u, "DISPATCH"):
		return TruckInUse
	default:
		return TruckAvailable
	}
}
