package tables

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// Entity option keys for loads.
const (
	// OptTreatAsHistorical imports loads with no recognizable status as DELIVERED.
	OptTreatAsHistorical = "treatAsHistorical"
)

// Stop types.
const (
	StopPickup   = "PICKUP"
	StopDelivery = "DELIVERY"
)

// Stop defaults used when the file has no usable value.
const (
	DefaultStopCity  = "Unknown"
	DefaultStopState = "XX"
	DefaultStopZip   = "00000"
	DefaultShipper   = "Shipper"
	DefaultConsignee = "Consignee"
)

// now is replaced in tests.
var now = time.Now

// Stop is a pickup or delivery attached to a load.
type Stop struct {
	Type     string    `json:"type"`
	Sequence int       `json:"sequence"`
	Company  string    `json:"company"`
	Address  string    `json:"address"`
	City     string    `json:"city"`
	State    string    `json:"state"`
	Zip      string    `json:"zip"`
	Contact  string    `json:"contact,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Date     time.Time `json:"date"`
}

// StopPatch holds the stop values a source row actually supplied. Updating an
// existing load applies only these; an empty string or a nil Date leaves the
// stored value alone.
type StopPatch struct {
	Company string
	Address string
	City    string
	State   string
	Zip     string
	Contact string
	Phone   string
	Date    *time.Time
}

// Empty reports whether the patch changes nothing.
func (p StopPatch) Empty() bool {
	return p == StopPatch{}
}

// Load is a typed load record with its two boundary stops.
type Load struct {
	LoadNumber    string `json:"loadNumber" validate:"required,max=64"`
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	McNumberID    string `json:"mcNumberId,omitempty" validate:"omitempty,max=64"`
	Status        string `json:"status" validate:"required,oneof=PENDING ASSIGNED EN_ROUTE_PICKUP AT_PICKUP DELIVERED INVOICED PAID"`
	EquipmentType string `json:"equipmentType" validate:"required,oneof=DRY_VAN REEFER FLATBED STEP_DECK POWER_ONLY BOX_TRUCK"`

	PickupDate   time.Time `json:"pickupDate" validate:"required"`
	DeliveryDate time.Time `json:"deliveryDate" validate:"required"`

	Revenue        decimal.Decimal `json:"revenue" validate:"gte=0"`
	DriverPay      decimal.Decimal `json:"driverPay" validate:"gte=0"`
	FuelAdvance    decimal.Decimal `json:"fuelAdvance" validate:"gte=0"`
	RevenuePerMile decimal.Decimal `json:"revenuePerMile" validate:"gte=0"`
	TotalMiles     decimal.Decimal `json:"totalMiles" validate:"gte=0"`
	LoadedMiles    decimal.Decimal `json:"loadedMiles" validate:"gte=0"`
	EmptyMiles     decimal.Decimal `json:"emptyMiles" validate:"gte=0"`
	Weight         decimal.Decimal `json:"weight" validate:"gte=0"`
	Pieces         int             `json:"pieces" validate:"gte=0"`
	Pallets        int             `json:"pallets" validate:"gte=0"`

	Commodity     string `json:"commodity,omitempty"`
	ShipmentID    string `json:"shipmentId,omitempty" validate:"max=100"`
	DispatchNotes string `json:"dispatchNotes,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	Urgency       string `json:"urgency" validate:"max=20"`
	Hazmat        bool   `json:"hazmat"`
	SuspiciousPay bool   `json:"suspiciousPay"`

	Pickup   Stop `json:"pickup"`
	Delivery Stop `json:"delivery"`

	// Source-supplied stop values, used when the load already exists.
	PickupPatch   StopPatch `json:"-"`
	DeliveryPatch StopPatch `json:"-"`
}

// NaturalKey implements core.Record.
func (l *Load) NaturalKey() string { return l.LoadNumber }

func init() {
	registerLoads()
}

func registerLoads() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "loads",
			Label:      "Loads",
			NaturalKey: "loadNumber",
		},
		Fields: []core.FieldSpec{
			{Name: "loadNumber", Label: "Load Number", Required: true, Synonyms: []string{"Load ID", "Load #", "Load No", "Order Number", "Pro Number", "Trip Number"}},
			{Name: "customerName", Label: "Customer", Required: true, Synonyms: []string{"Customer Name", "Broker", "Bill To"}},
			{Name: "mcNumberId", Label: "MC Number", Synonyms: []string{"MC", "MC #"}},
			{Name: "status", Label: "Status", Synonyms: []string{"Load Status"}},
			{Name: "equipmentType", Label: "Equipment", Synonyms: []string{"Equipment Type", "Trailer Type"}},

			// Pickup stop
			{Name: "pickupLocation", Label: "Pickup Location", Synonyms: []string{"Pickup", "Origin"}},
			{Name: "pickupAddress", Label: "Pickup Address", Synonyms: []string{"Origin Address"}},
			{Name: "pickupCity", Label: "Pickup City", Synonyms: []string{"Origin City"}},
			{Name: "pickupState", Label: "Pickup State", Synonyms: []string{"Origin State"}, Normalizer: NormalizeUsState},
			{Name: "pickupZip", Label: "Pickup Zip", Synonyms: []string{"Origin Zip"}},
			{Name: "pickupCompany", Label: "Shipper", Synonyms: []string{"Shipper Name", "Pickup Company"}},
			{Name: "pickupContact", Label: "Pickup Contact", Synonyms: []string{"Origin Contact"}},
			{Name: "pickupPhone", Label: "Pickup Phone", Synonyms: []string{"Origin Phone"}},
			{Name: "pickupDate", Label: "Pickup Date", Type: core.FieldDate, Recommended: true, Synonyms: []string{"PU Date", "Ship Date"}},

			// Delivery stop
			{Name: "deliveryLocation", Label: "Delivery Location", Synonyms: []string{"Delivery", "Destination", "Dest"}},
			{Name: "deliveryAddress", Label: "Delivery Address", Synonyms: []string{"Destination Address"}},
			{Name: "deliveryCity", Label: "Delivery City", Synonyms: []string{"Destination City", "Dest City"}},
			{Name: "deliveryState", Label: "Delivery State", Synonyms: []string{"Destination State", "Dest State"}, Normalizer: NormalizeUsState},
			{Name: "deliveryZip", Label: "Delivery Zip", Synonyms: []string{"Destination Zip", "Dest Zip"}},
			{Name: "deliveryCompany", Label: "Consignee", Synonyms: []string{"Receiver", "Delivery Company"}},
			{Name: "deliveryContact", Label: "Delivery Contact", Synonyms: []string{"Destination Contact"}},
			{Name: "deliveryPhone", Label: "Delivery Phone", Synonyms: []string{"Destination Phone"}},
			{Name: "deliveryDate", Label: "Delivery Date", Type: core.FieldDate, Recommended: true, Synonyms: []string{"DEL Date"}},

			// Money and distance
			{Name: "revenue", Label: "Revenue", Type: core.FieldNumeric, Synonyms: []string{"Total Amount", "Gross", "Total Pay", "Load Pay"}},
			{Name: "lineHaul", Label: "Line Haul", Type: core.FieldNumeric, Synonyms: []string{"Flat Rate", "Rate", "Amount"}},
			{Name: "fsc", Label: "Fuel Surcharge", Type: core.FieldNumeric, Synonyms: []string{"FSC", "Fuel"}},
			{Name: "accessorials", Label: "Accessorials", Type: core.FieldNumeric, Synonyms: []string{"Other", "Detention", "Lumper"}},
			{Name: "driverPay", Label: "Driver Pay", Type: core.FieldNumeric, Synonyms: []string{"Driver Rate", "Carrier Pay"}},
			{Name: "fuelAdvance", Label: "Fuel Advance", Type: core.FieldNumeric, Synonyms: []string{"Advance"}},
			{Name: "totalMiles", Label: "Total Miles", Type: core.FieldNumeric, Synonyms: []string{"Miles", "Billed Miles", "Trip Miles", "Paid Miles", "Distance"}},
			{Name: "loadedMiles", Label: "Loaded Miles", Type: core.FieldNumeric},
			{Name: "emptyMiles", Label: "Empty Miles", Type: core.FieldNumeric, Synonyms: []string{"Deadhead"}},
			{Name: "revenuePerMile", Label: "Revenue Per Mile", Type: core.FieldNumeric, Synonyms: []string{"RPM", "Rate Per Mile", "Rate/Mile"}},

			// Freight
			{Name: "weight", Label: "Weight", Type: core.FieldNumeric, Synonyms: []string{"Lbs", "Gross Weight"}},
			{Name: "pieces", Label: "Pieces", Type: core.FieldNumeric, Synonyms: []string{"Pcs"}},
			{Name: "pallets", Label: "Pallets", Type: core.FieldNumeric, Synonyms: []string{"Plts"}},
			{Name: "commodity", Label: "Commodity", Synonyms: []string{"Cargo", "Item"}},
			{Name: "shipmentId", Label: "Reference", Synonyms: []string{"Ref", "Ref#", "PO", "PO#", "BOL", "Shipment ID"}},
			{Name: "dispatchNotes", Label: "Dispatch Notes", Synonyms: []string{"Notes", "Instructions", "Comments"}},
			{Name: "temperature", Label: "Temperature", Synonyms: []string{"Temp"}},
			{Name: "hazmat", Label: "Hazmat", Type: core.FieldBool, Synonyms: []string{"Hazardous"}},
			{Name: "urgency", Label: "Urgency", Synonyms: []string{"Priority"}},
		},
		Build:     buildLoad,
		Validator: core.ValidatorFunc(validateLoad),
	})
}

// =============================================================================
// Derivation
// =============================================================================

// financials are the money and distance values derived from one row.
type financials struct {
	Revenue        decimal.Decimal
	DriverPay      decimal.Decimal
	FuelAdvance    decimal.Decimal
	TotalMiles     decimal.Decimal
	LoadedMiles    decimal.Decimal
	EmptyMiles     decimal.Decimal
	RevenuePerMile decimal.Decimal
	Weight         decimal.Decimal
}

func num(c core.Candidate, field string) decimal.Decimal {
	d, ok := core.ParseDecimal(c.Get(field))
	if !ok {
		return decimal.Zero
	}
	return d
}

// deriveFinancials computes revenue, miles and rate per mile.
//
// Revenue is the gross amount when present, otherwise line haul + fuel
// surcharge + accessorials. Loaded miles default to total - empty. Rate per
// mile is computed from revenue when possible and falls back to the file's
// RPM column, which can then back-fill revenue.
func deriveFinancials(c core.Candidate) financials {
	f := financials{
		DriverPay:   num(c, "driverPay"),
		FuelAdvance: num(c, "fuelAdvance"),
		EmptyMiles:  num(c, "emptyMiles"),
		Weight:      num(c, "weight"),
	}

	f.Revenue = num(c, "revenue")
	if !f.Revenue.IsPositive() {
		f.Revenue = num(c, "lineHaul").Add(num(c, "fsc")).Add(num(c, "accessorials"))
	}

	total := num(c, "totalMiles")
	f.LoadedMiles = num(c, "loadedMiles")
	if f.LoadedMiles.IsZero() && total.IsPositive() {
		f.LoadedMiles = decimal.Max(decimal.Zero, total.Sub(f.EmptyMiles))
	}
	f.TotalMiles = f.LoadedMiles.Add(f.EmptyMiles)
	if !f.TotalMiles.IsPositive() {
		f.TotalMiles = total
	}

	rpm := num(c, "revenuePerMile")
	switch {
	case f.Revenue.IsPositive() && f.TotalMiles.IsPositive():
		f.RevenuePerMile = f.Revenue.Div(f.TotalMiles).Round(2)
	case rpm.IsPositive():
		f.RevenuePerMile = rpm
		if f.Revenue.IsZero() && f.TotalMiles.IsPositive() {
			f.Revenue = rpm.Mul(f.TotalMiles).Round(2)
		}
	}

	if f.Weight.IsZero() {
		f.Weight = decimal.NewFromInt(1)
	}
	return f
}

// suspiciousPay reports a driver pay that equals revenue, which usually means
// the same column was mapped twice.
func (f financials) suspiciousPay() bool {
	return f.Revenue.IsPositive() && f.DriverPay.Equal(f.Revenue)
}

// buildStop resolves one stop from explicit city/state/zip columns first,
// then a free-text location string, then defaults.
func buildStop(c core.Candidate, prefix, stopType string, seq int, company string) Stop {
	location := c.Get(prefix + "Location")
	if location == "" {
		location = c.Get(prefix + "Address")
	}
	parsed := ParseLocation(location)

	s := Stop{
		Type:     stopType,
		Sequence: seq,
		Company:  firstNonEmpty(c.Get(prefix+"Company"), company),
		City:     firstNonEmpty(c.Get(prefix+"City"), parsed.City, DefaultStopCity),
		State:    NormalizeUsState(firstNonEmpty(c.Get(prefix+"State"), parsed.State)),
		Zip:      firstNonEmpty(c.Get(prefix+"Zip"), parsed.Zip, DefaultStopZip),
		Contact:  c.Get(prefix + "Contact"),
		Phone:    c.Get(prefix + "Phone"),
	}
	if s.State == "" {
		s.State = DefaultStopState
	}

	s.Address = c.Get(prefix + "Address")
	if s.Address == "" {
		s.Address = location
	}
	if s.Address == "" {
		s.Address = s.City + ", " + s.State
	}
	return s
}

// stopPatch collects the stop values present in the row, without defaults.
func stopPatch(c core.Candidate, prefix string, date *time.Time) StopPatch {
	location := firstNonEmpty(c.Get(prefix+"Location"), c.Get(prefix+"Address"))
	parsed := ParseLocation(location)
	return StopPatch{
		Company: c.Get(prefix + "Company"),
		Address: firstNonEmpty(c.Get(prefix+"Address"), location),
		City:    firstNonEmpty(c.Get(prefix+"City"), parsed.City),
		State:   NormalizeUsState(firstNonEmpty(c.Get(prefix+"State"), parsed.State)),
		Zip:     firstNonEmpty(c.Get(prefix+"Zip"), parsed.Zip),
		Contact: c.Get(prefix + "Contact"),
		Phone:   c.Get(prefix + "Phone"),
		Date:    date,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// Builder and validator
// =============================================================================

func buildLoad(c core.Candidate, opts core.EntityOptions) (core.Record, error) {
	fin := deriveFinancials(c)

	statusFallback := LoadPending
	if opts.Enabled(OptTreatAsHistorical) {
		statusFallback = LoadDelivered
	}

	var suppliedPickup, suppliedDelivery *time.Time
	pickupDate, ok := core.ParseDate(c.Get("pickupDate"))
	if ok {
		suppliedPickup = &pickupDate
	} else {
		pickupDate = now().UTC()
	}
	deliveryDate, ok := core.ParseDate(c.Get("deliveryDate"))
	if ok {
		suppliedDelivery = &deliveryDate
	} else {
		deliveryDate = pickupDate.Add(24 * time.Hour)
	}

	hazmat, _ := core.ParseBool(c.Get("hazmat"))
	pieces, _ := core.ParseInt(c.Get("pieces"))
	pallets, _ := core.ParseInt(c.Get("pallets"))

	urgency := "NORMAL"
	if u := c.Get("urgency"); u != "" {
		urgency = strings.ToUpper(u)
	}

	l := &Load{
		LoadNumber:     c.Get("loadNumber"),
		CustomerName:   c.Get("customerName"),
		McNumberID:     c.Get("mcNumberId"),
		Status:         LoadStatusFromText(c.Get("status"), statusFallback),
		EquipmentType:  EquipmentFromText(c.Get("equipmentType")),
		PickupDate:     pickupDate,
		DeliveryDate:   deliveryDate,
		Revenue:        fin.Revenue,
		DriverPay:      fin.DriverPay,
		FuelAdvance:    fin.FuelAdvance,
		RevenuePerMile: fin.RevenuePerMile,
		TotalMiles:     fin.TotalMiles,
		LoadedMiles:    fin.LoadedMiles,
		EmptyMiles:     fin.EmptyMiles,
		Weight:         fin.Weight,
		Pieces:         pieces,
		Pallets:        pallets,
		Commodity:      c.Get("commodity"),
		ShipmentID:     c.Get("shipmentId"),
		DispatchNotes:  c.Get("dispatchNotes"),
		Temperature:    c.Get("temperature"),
		Urgency:        urgency,
		Hazmat:         hazmat,
		SuspiciousPay:  fin.suspiciousPay(),
	}

	l.Pickup = buildStop(c, "pickup", StopPickup, 1, DefaultShipper)
	l.Pickup.Date = pickupDate
	l.Delivery = buildStop(c, "delivery", StopDelivery, 2, DefaultConsignee)
	l.Delivery.Date = deliveryDate
	l.PickupPatch = stopPatch(c, "pickup", suppliedPickup)
	l.DeliveryPatch = stopPatch(c, "delivery", suppliedDelivery)

	if err := checkRecord(l); err != nil {
		return nil, err
	}
	return l, nil
}

// validateLoad adds load-specific warnings to the catalog checks.
func validateLoad(c core.Candidate, _ *core.Catalog) core.ValidationReport {
	var r core.ValidationReport
	warn := func(field, msg string) {
		r.Warnings = append(r.Warnings, core.ValidationError{Field: field, Value: c.Get(field), Message: msg})
	}

	fin := deriveFinancials(c)
	if fin.suspiciousPay() {
		warn("driverPay", "driver pay equals revenue; check that the same column is not mapped twice")
	}
	if !fin.Revenue.IsPositive() {
		warn("revenue", "no revenue found; the load will be saved with 0 revenue")
	}

	for _, prefix := range []string{"pickup", "delivery"} {
		if !c.Has(prefix+"Location") && !c.Has(prefix+"Address") && !c.Has(prefix+"City") {
			warn(prefix+"Location", "location missing; a new stop is saved as "+DefaultStopCity+" and an existing stop keeps its values")
		}
	}

	if st := c.Get("pickupState"); st != "" && !usStateCodes[NormalizeUsState(st)] {
		warn("pickupState", "not a US state")
	}
	if st := c.Get("deliveryState"); st != "" && !usStateCodes[NormalizeUsState(st)] {
		warn("deliveryState", "not a US state")
	}

	pu, okPU := core.ParseDate(c.Get("pickupDate"))
	del, okDel := core.ParseDate(c.Get("deliveryDate"))
	if okPU && okDel && del.Before(pu) {
		warn("deliveryDate", "delivery date is before pickup date")
	}

	return r
}
