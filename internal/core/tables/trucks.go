package tables

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// DefaultTruckCapacity is the payload assumed when the file has none (lbs).
var DefaultTruckCapacity = decimal.NewFromInt(45000)

// Truck is a typed truck record. Trucks have no dependent rows.
type Truck struct {
	TruckNumber   string `json:"truckNumber" validate:"required,max=32"`
	VIN           string `json:"vin,omitempty" validate:"omitempty,len=17,alphanum"`
	Make          string `json:"make" validate:"required,max=64"`
	Model         string `json:"model" validate:"required,max=64"`
	Year          int    `json:"year" validate:"gte=1950,lte=2100"`
	LicensePlate  string `json:"licensePlate" validate:"required,max=16"`
	State         string `json:"state" validate:"len=2"`
	Status        string `json:"status" validate:"oneof=AVAILABLE IN_USE MAINTENANCE OUT_OF_SERVICE INACTIVE"`
	EquipmentType string `json:"equipmentType" validate:"oneof=DRY_VAN REEFER FLATBED STEP_DECK POWER_ONLY BOX_TRUCK"`
	McNumberID    string `json:"mcNumberId,omitempty" validate:"omitempty,max=64"`

	OdometerReading decimal.Decimal `json:"odometerReading" validate:"gte=0"`
	Capacity        decimal.Decimal `json:"capacity" validate:"gte=0"`

	RegistrationExpiry time.Time `json:"registrationExpiry"`
	InsuranceExpiry    time.Time `json:"insuranceExpiry"`
	InspectionExpiry   time.Time `json:"inspectionExpiry"`
}

// NaturalKey implements core.Record.
func (t *Truck) NaturalKey() string { return t.TruckNumber }

func init() {
	registerTrucks()
}

func registerTrucks() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "trucks",
			Label:      "Trucks",
			NaturalKey: "truckNumber",
		},
		Fields: []core.FieldSpec{
			{Name: "truckNumber", Label: "Truck Number", Required: true, Synonyms: []string{"Unit Number", "Unit", "Unit #", "Truck #", "Truck"}},
			{Name: "vin", Label: "VIN", Synonyms: []string{"Vehicle ID"}},
			{Name: "make", Label: "Make", Recommended: true},
			{Name: "model", Label: "Model", Recommended: true},
			{Name: "year", Label: "Year", Type: core.FieldNumeric, Synonyms: []string{"Model Year"}},
			{Name: "licensePlate", Label: "License Plate", Recommended: true, Synonyms: []string{"Plate", "Tag", "Plate Number"}},
			{Name: "state", Label: "State", Synonyms: []string{"Registration State", "Plate State"}, Normalizer: NormalizeUsState},
			{Name: "status", Label: "Status", Synonyms: []string{"Truck Status"}},
			{Name: "equipmentType", Label: "Equipment Type", Synonyms: []string{"Equipment"}},
			{Name: "mcNumberId", Label: "MC Number", Synonyms: []string{"MC", "MC #"}},
			{Name: "odometerReading", Label: "Odometer", Type: core.FieldNumeric, Synonyms: []string{"Mileage"}},
			{Name: "capacity", Label: "Capacity", Type: core.FieldNumeric},
			{Name: "registrationExpiry", Label: "Registration Expiry", Type: core.FieldDate},
			{Name: "insuranceExpiry", Label: "Insurance Expiry", Type: core.FieldDate},
			{Name: "inspectionExpiry", Label: "Inspection Expiry", Type: core.FieldDate, Synonyms: []string{"Annual Inspection"}},
		},
		Build: buildTruck,
	})
}

func buildTruck(c core.Candidate, _ core.EntityOptions) (core.Record, error) {
	t := &Truck{
		TruckNumber:   c.Get("truckNumber"),
		VIN:           c.Get("vin"),
		Make:          firstNonEmpty(c.Get("make"), "Unknown"),
		Model:         firstNonEmpty(c.Get("model"), "Unknown"),
		LicensePlate:  firstNonEmpty(c.Get("licensePlate"), "UNKNOWN"),
		Status:        TruckStatusFromText(c.Get("status")),
		EquipmentType: EquipmentFromText(c.Get("equipmentType")),
		McNumberID:    c.Get("mcNumberId"),
		Capacity:      DefaultTruckCapacity,
	}

	if y, ok := core.ParseInt(c.Get("year")); ok && y > 0 {
		t.Year = y
	} else {
		t.Year = now().Year()
	}

	// The state column sometimes carries a whole location.
	state := c.Get("state")
	if st := NormalizeUsState(state); usStateCodes[st] {
		t.State = st
	} else if loc := ParseLocation(state); loc.State != "" && usStateCodes[loc.State] {
		t.State = loc.State
	} else {
		t.State = DefaultStopState
	}

	if d, ok := core.ParseDecimal(c.Get("odometerReading")); ok {
		t.OdometerReading = d
	}
	if d, ok := core.ParseDecimal(c.Get("capacity")); ok && d.IsPositive() {
		t.Capacity = d
	}

	nextYear := now().UTC().AddDate(1, 0, 0)
	t.RegistrationExpiry = dateOr(c.Get("registrationExpiry"), nextYear)
	t.InsuranceExpiry = dateOr(c.Get("insuranceExpiry"), nextYear)
	t.InspectionExpiry = dateOr(c.Get("inspectionExpiry"), nextYear)

	if err := checkRecord(t); err != nil {
		return nil, err
	}
	return t, nil
}

func dateOr(s string, def time.Time) time.Time {
	if d, ok := core.ParseDate(s); ok {
		return d
	}
	return def
}
