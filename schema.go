package gtfsdb

// NOTE: Skipped validating
//   - foreign IDs into translations and locations.geojson

// ConditionCheck is the predicate kind of a conditional-requirement rule.
type ConditionCheck int

const (
	// FieldInRange holds when the reference field parses as an integer
	// within [Min, Max].
	FieldInRange ConditionCheck = iota
	// FieldEmpty holds when the reference field is empty.
	FieldEmpty
	// FieldValueMatch requires the owning field's value to exist among all
	// values recorded for ValueField (e.g. fare zone ids among stop zone_ids).
	FieldValueMatch
	// RowCountGreaterThanOne holds when CountTable has seen more than one row.
	RowCountGreaterThanOne
)

// Condition declares that Dependent must be populated whenever the
// predicate over Reference (or dataset-wide state) holds. Attached to the
// reference field at schema-definition time, evaluated once per row.
type Condition struct {
	Check      ConditionCheck
	Reference  string // field whose value drives the predicate
	Dependent  string // field that must be non-empty when the predicate holds
	Min, Max   int64  // FieldInRange bounds
	ValueField string // FieldValueMatch: column whose recorded values must contain this value
	CountTable string // RowCountGreaterThanOne: table whose row count is consulted
}

// Table is the declarative schema of one GTFS table: an ordered field list
// plus table-level metadata. By convention the field at index 0 is the key
// field and, for compound-key tables, the field at index 1 is the order
// field.
type Table struct {
	Name        string
	Requirement Requirement
	Fields      []*Field

	// ParentTable names the table whose rows logically own this table's
	// rows (stop_times belong to trips).
	ParentTable string

	// CompoundKey scopes uniqueness to (key field, order field).
	CompoundKey bool

	// NonUnique disables duplicate checking for the key field; values are
	// still recorded so later tables can reference them.
	NonUnique bool

	// RestrictDelete marks tables whose rows must not be cascade-deleted.
	RestrictDelete bool
}

func (t *Table) isRequired() bool {
	return t.Requirement == Required
}

// KeyFieldName returns the name of the table's key field. Only meaningful
// for canonical schema tables, never for ad hoc column sets built from
// arbitrary CSV headers.
func (t *Table) KeyFieldName() string {
	return t.Fields[0].Name
}

// OrderFieldName returns the sequence field for compound-key tables, or ""
// when the table has no ordering.
func (t *Table) OrderFieldName() string {
	if len(t.Fields) > 1 && t.Fields[1].OrderKey {
		return t.Fields[1].Name
	}
	return ""
}

func (t *Table) hasUniqueKeyField() bool {
	return !t.NonUnique
}

// FieldForName resolves a CSV header against the declared fields. Headers
// the schema does not know become permissive unknown string fields so
// proprietary and extension columns are retained rather than dropped.
func (t *Table) FieldForName(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return unknownField(name)
}

func (t *Table) field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// conditionalRequirements maps each field that carries rules to its rules.
func (t *Table) conditionalRequirements() map[*Field][]Condition {
	out := make(map[*Field][]Condition)
	for _, f := range t.Fields {
		if len(f.Conditions) > 0 {
			out[f] = f.Conditions
		}
	}
	return out
}

// trackedValueFields lists the columns whose every value must be recorded
// in the tracker's value multimap because some condition consults them.
func (t *Table) trackedValueFields() []string {
	var out []string
	for _, f := range t.Fields {
		for _, c := range f.Conditions {
			if c.Check == FieldValueMatch {
				out = append(out, c.ValueField)
			}
		}
	}
	return out
}

// allTrackedValueFields is the union over the whole schema, keyed by field
// name; computed once so the loader knows which columns feed the multimap.
var allTrackedValueFields = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range loadOrder {
		for _, name := range t.trackedValueFields() {
			m[name] = true
		}
	}
	return m
}()

func tableByName(name string) *Table {
	for _, t := range loadOrder {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// loadOrder is a topological sort of the table DAG: a table appears only
// after every table it references, because referential-integrity checks
// consult keys recorded by earlier loads.
var loadOrder = []*Table{
	agencyTable,
	calendarTable,
	calendarDatesTable,
	timeframeTable,
	feedInfoTable,
	levelsTable,
	stopsTable,
	areasTable,
	stopAreasTable,
	locationGroupsTable,
	locationGroupStopsTable,
	routesTable,
	networksTable,
	routeNetworksTable,
	fareAttributesTable,
	fareRulesTable,
	fareMediaTable,
	fareProductsTable,
	fareLegRulesTable,
	fareTransferRulesTable,
	shapesTable,
	bookingRulesTable,
	tripsTable,
	frequenciesTable,
	stopTimesTable,
	transfersTable,
	pathwaysTable,
	attributionsTable,
	translationsTable,
}

var agencyTable = &Table{
	Name:           "agency",
	Requirement:    Required,
	RestrictDelete: true,
	Fields: []*Field{
		newField("agency_id", StringField, Optional).when(Condition{
			Check:      RowCountGreaterThanOne,
			CountTable: "agency",
			Dependent:  "agency_id",
		}),
		newField("agency_name", StringField, Required),
		newField("agency_url", URLField, Required),
		newField("agency_timezone", StringField, Required),
		newField("agency_lang", LanguageField, Optional),
		newField("agency_phone", StringField, Optional),
		newField("agency_fare_url", URLField, Optional),
		newField("agency_email", StringField, Optional),
	},
}

var calendarTable = &Table{
	Name:           "calendar",
	Requirement:    Optional,
	RestrictDelete: true,
	Fields: []*Field{
		newField("service_id", StringField, Required),
		newField("monday", BooleanField, Required),
		newField("tuesday", BooleanField, Required),
		newField("wednesday", BooleanField, Required),
		newField("thursday", BooleanField, Required),
		newField("friday", BooleanField, Required),
		newField("saturday", BooleanField, Required),
		newField("sunday", BooleanField, Required),
		newField("start_date", DateField, Required),
		newField("end_date", DateField, Required),
	},
}

var calendarDatesTable = &Table{
	Name:        "calendar_dates",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("service_id", StringField, Required),
		newField("date", DateField, Required),
		newField("exception_type", ShortField, Required).bounds(1, 2),
	},
}

// timeframe rows repeat a group id across time windows, so the key is
// recorded for fare_leg_rules references but never checked for
// duplicates.
var timeframeTable = &Table{
	Name:        "timeframe",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("timeframe_group_id", StringField, Required),
		newField("start_time", TimeField, Optional),
		newField("end_time", TimeField, Optional),
		newField("service_id", StringField, Required).refs("calendar", "calendar_dates"),
	},
}

var feedInfoTable = &Table{
	Name:        "feed_info",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("feed_publisher_name", StringField, Required),
		newField("feed_publisher_url", URLField, Required),
		newField("feed_lang", LanguageField, Required),
		newField("default_lang", LanguageField, Optional),
		newField("feed_start_date", DateField, Optional),
		newField("feed_end_date", DateField, Optional),
		newField("feed_version", StringField, Optional),
		newField("feed_contact_email", StringField, Optional),
		newField("feed_contact_url", URLField, Optional),
	},
}

var levelsTable = &Table{
	Name:        "levels",
	Requirement: Optional,
	Fields: []*Field{
		newField("level_id", StringField, Required),
		newField("level_index", DoubleField, Required),
		newField("level_name", StringField, Optional),
	},
}

var stopsTable = &Table{
	Name:           "stops",
	Requirement:    Required,
	RestrictDelete: true,
	Fields: []*Field{
		newField("stop_id", StringField, Required).indexed(),
		newField("stop_code", StringField, Optional),
		newField("stop_name", StringField, Optional),
		newField("stop_desc", StringField, Optional),
		newField("stop_lat", DoubleField, Optional).bounds(-90, 90).precision(6),
		newField("stop_lon", DoubleField, Optional).bounds(-180, 180).precision(6),
		newField("zone_id", StringField, Optional),
		newField("stop_url", URLField, Optional),
		newField("location_type", ShortField, Optional).bounds(0, 4).when(
			Condition{Check: FieldInRange, Reference: "location_type", Min: 0, Max: 2, Dependent: "stop_name"},
			Condition{Check: FieldInRange, Reference: "location_type", Min: 0, Max: 2, Dependent: "stop_lat"},
			Condition{Check: FieldInRange, Reference: "location_type", Min: 0, Max: 2, Dependent: "stop_lon"},
			Condition{Check: FieldInRange, Reference: "location_type", Min: 2, Max: 4, Dependent: "parent_station"},
		),
		newField("parent_station", StringField, Optional).refs("stops"),
		newField("stop_timezone", StringField, Optional),
		newField("wheelchair_boarding", ShortField, Optional).bounds(0, 2),
		newField("level_id", StringField, Optional).refs("levels"),
		newField("platform_code", StringField, Optional),
	},
}

var areasTable = &Table{
	Name:        "areas",
	Requirement: Optional,
	Fields: []*Field{
		newField("area_id", StringField, Required),
		newField("area_name", StringField, Optional),
	},
}

var stopAreasTable = &Table{
	Name:        "stop_areas",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("area_id", StringField, Required).refs("areas"),
		newField("stop_id", StringField, Required).refs("stops"),
	},
}

var locationGroupsTable = &Table{
	Name:        "location_groups",
	Requirement: Optional,
	Fields: []*Field{
		newField("location_group_id", StringField, Required),
		newField("location_group_name", StringField, Optional),
	},
}

var locationGroupStopsTable = &Table{
	Name:        "location_group_stops",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("location_group_id", StringField, Required).refs("location_groups"),
		newField("stop_id", StringField, Required).refs("stops"),
	},
}

var routesTable = &Table{
	Name:           "routes",
	Requirement:    Required,
	RestrictDelete: true,
	Fields: []*Field{
		newField("route_id", StringField, Required).indexed(),
		newField("agency_id", StringField, Optional).refs("agency").when(Condition{
			Check:      RowCountGreaterThanOne,
			CountTable: "agency",
			Dependent:  "agency_id",
		}),
		newField("route_short_name", StringField, Optional),
		newField("route_long_name", StringField, Optional).when(Condition{
			Check:     FieldEmpty,
			Reference: "route_long_name",
			Dependent: "route_short_name",
		}),
		newField("route_desc", StringField, Optional),
		newField("route_type", ShortField, Required).bounds(0, 12),
		newField("route_url", URLField, Optional),
		newField("route_color", ColorField, Optional),
		newField("route_text_color", ColorField, Optional),
		newField("route_sort_order", IntegerField, Optional).atLeast(0),
		newField("continuous_pickup", ShortField, Optional).bounds(0, 3),
		newField("continuous_drop_off", ShortField, Optional).bounds(0, 3),
	},
}

var networksTable = &Table{
	Name:        "networks",
	Requirement: Optional,
	Fields: []*Field{
		newField("network_id", StringField, Required),
		newField("network_name", StringField, Optional),
	},
}

// route_networks is keyed by route: each route belongs to at most one
// network.
var routeNetworksTable = &Table{
	Name:        "route_networks",
	Requirement: Optional,
	Fields: []*Field{
		newField("route_id", StringField, Required).refs("routes"),
		newField("network_id", StringField, Required).refs("networks"),
	},
}

var fareAttributesTable = &Table{
	Name:        "fare_attributes",
	Requirement: Optional,
	Fields: []*Field{
		newField("fare_id", StringField, Required),
		newField("price", DoubleField, Required).atLeast(0).precision(2),
		newField("currency_type", CurrencyField, Required),
		newField("payment_method", ShortField, Required).bounds(0, 1),
		newField("transfers", ShortField, Optional).bounds(0, 2),
		newField("agency_id", StringField, Optional).refs("agency").when(Condition{
			Check:      RowCountGreaterThanOne,
			CountTable: "agency",
			Dependent:  "agency_id",
		}),
		newField("transfer_duration", IntegerField, Optional).atLeast(0),
	},
}

var fareRulesTable = &Table{
	Name:        "fare_rules",
	Requirement: Optional,
	NonUnique:   true,
	ParentTable: "fare_attributes",
	Fields: []*Field{
		newField("fare_id", StringField, Required).refs("fare_attributes"),
		newField("route_id", StringField, Optional).refs("routes"),
		newField("origin_id", StringField, Optional).when(Condition{
			Check: FieldValueMatch, ValueField: "zone_id", Dependent: "origin_id",
		}),
		newField("destination_id", StringField, Optional).when(Condition{
			Check: FieldValueMatch, ValueField: "zone_id", Dependent: "destination_id",
		}),
		newField("contains_id", StringField, Optional).when(Condition{
			Check: FieldValueMatch, ValueField: "zone_id", Dependent: "contains_id",
		}),
	},
}

var fareMediaTable = &Table{
	Name:        "fare_media",
	Requirement: Optional,
	Fields: []*Field{
		newField("fare_media_id", StringField, Required),
		newField("fare_media_name", StringField, Optional),
		newField("fare_media_type", ShortField, Required).bounds(0, 4),
	},
}

// A fare product may repeat per fare medium, so the product id is recorded
// without duplicate checking.
var fareProductsTable = &Table{
	Name:        "fare_products",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("fare_product_id", StringField, Required),
		newField("fare_product_name", StringField, Optional),
		newField("fare_media_id", StringField, Optional).refs("fare_media"),
		newField("amount", DoubleField, Required).precision(2),
		newField("currency", CurrencyField, Required),
	},
}

// fare_leg_rules is keyed by leg_group_id so fare_transfer_rules can
// reference leg groups; the id is optional and repeats across rows.
var fareLegRulesTable = &Table{
	Name:        "fare_leg_rules",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("leg_group_id", StringField, Optional),
		newField("network_id", StringField, Optional).refs("networks"),
		newField("from_area_id", StringField, Optional).refs("areas"),
		newField("to_area_id", StringField, Optional).refs("areas"),
		newField("from_timeframe_group_id", StringField, Optional).refs("timeframe"),
		newField("to_timeframe_group_id", StringField, Optional).refs("timeframe"),
		newField("fare_product_id", StringField, Required).refs("fare_products"),
		newField("rule_priority", IntegerField, Optional).atLeast(0),
	},
}

var fareTransferRulesTable = &Table{
	Name:        "fare_transfer_rules",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("from_leg_group_id", StringField, Optional).refs("fare_leg_rules"),
		newField("to_leg_group_id", StringField, Optional).refs("fare_leg_rules"),
		newField("transfer_count", IntegerField, Optional),
		newField("duration_limit", IntegerField, Optional).atLeast(1),
		newField("duration_limit_type", ShortField, Optional).bounds(0, 3),
		newField("fare_transfer_type", ShortField, Required).bounds(0, 2),
		newField("fare_product_id", StringField, Optional).refs("fare_products"),
	},
}

var shapesTable = &Table{
	Name:        "shapes",
	Requirement: Optional,
	CompoundKey: true,
	Fields: []*Field{
		newField("shape_id", StringField, Required).indexed(),
		newField("shape_pt_sequence", IntegerField, Required).atLeast(0).orderKey(),
		newField("shape_pt_lat", DoubleField, Required).bounds(-90, 90).precision(6),
		newField("shape_pt_lon", DoubleField, Required).bounds(-180, 180).precision(6),
		newField("shape_dist_traveled", DoubleField, Optional).atLeast(0),
	},
}

var bookingRulesTable = &Table{
	Name:        "booking_rules",
	Requirement: Optional,
	Fields: []*Field{
		newField("booking_rule_id", StringField, Required),
		newField("booking_type", ShortField, Required).bounds(0, 2),
		newField("prior_notice_duration_min", IntegerField, Optional).atLeast(0),
		newField("prior_notice_duration_max", IntegerField, Optional).atLeast(0),
		newField("prior_notice_last_day", IntegerField, Optional).atLeast(0),
		newField("prior_notice_last_time", TimeField, Optional),
		newField("prior_notice_start_day", IntegerField, Optional).atLeast(0),
		newField("prior_notice_start_time", TimeField, Optional),
		newField("prior_notice_service_id", StringField, Optional).refs("calendar"),
		newField("message", StringField, Optional),
		newField("pickup_message", StringField, Optional),
		newField("drop_off_message", StringField, Optional),
		newField("phone_number", StringField, Optional),
		newField("info_url", URLField, Optional),
		newField("booking_url", URLField, Optional),
	},
}

var tripsTable = &Table{
	Name:           "trips",
	Requirement:    Required,
	RestrictDelete: true,
	ParentTable:    "routes",
	Fields: []*Field{
		newField("trip_id", StringField, Required).indexed(),
		newField("route_id", StringField, Required).refs("routes"),
		newField("service_id", StringField, Required).refs("calendar", "calendar_dates"),
		newField("trip_headsign", StringField, Optional),
		newField("trip_short_name", StringField, Optional),
		newField("direction_id", ShortField, Optional).bounds(0, 1),
		newField("block_id", StringField, Optional),
		newField("shape_id", StringField, Optional).refs("shapes"),
		newField("wheelchair_accessible", ShortField, Optional).bounds(0, 2),
		newField("bikes_allowed", ShortField, Optional).bounds(0, 2),
	},
}

var frequenciesTable = &Table{
	Name:        "frequencies",
	Requirement: Optional,
	NonUnique:   true,
	ParentTable: "trips",
	Fields: []*Field{
		newField("trip_id", StringField, Required).refs("trips"),
		newField("start_time", TimeField, Required),
		newField("end_time", TimeField, Required),
		newField("headway_secs", IntegerField, Required).atLeast(1),
		newField("exact_times", ShortField, Optional).bounds(0, 1),
	},
}

var stopTimesTable = &Table{
	Name:        "stop_times",
	Requirement: Required,
	CompoundKey: true,
	ParentTable: "trips",
	Fields: []*Field{
		newField("trip_id", StringField, Required).refs("trips").indexed(),
		newField("stop_sequence", IntegerField, Required).atLeast(0).orderKey(),
		newField("arrival_time", TimeField, Optional),
		newField("departure_time", TimeField, Optional),
		newField("stop_id", StringField, Optional).refs("stops"),
		newField("location_group_id", StringField, Optional).refs("location_groups"),
		newField("stop_headsign", StringField, Optional),
		newField("pickup_type", ShortField, Optional).bounds(0, 3),
		newField("drop_off_type", ShortField, Optional).bounds(0, 3),
		newField("continuous_pickup", ShortField, Optional).bounds(0, 3),
		newField("continuous_drop_off", ShortField, Optional).bounds(0, 3),
		newField("shape_dist_traveled", DoubleField, Optional).atLeast(0),
		newField("timepoint", ShortField, Optional).bounds(0, 1),
		newField("pickup_booking_rule_id", StringField, Optional).refs("booking_rules"),
		newField("drop_off_booking_rule_id", StringField, Optional).refs("booking_rules"),
	},
}

var transfersTable = &Table{
	Name:        "transfers",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("from_stop_id", StringField, Optional).refs("stops"),
		newField("to_stop_id", StringField, Optional).refs("stops"),
		newField("from_route_id", StringField, Optional).refs("routes"),
		newField("to_route_id", StringField, Optional).refs("routes"),
		newField("from_trip_id", StringField, Optional).refs("trips"),
		newField("to_trip_id", StringField, Optional).refs("trips"),
		newField("transfer_type", ShortField, Required).bounds(0, 5),
		newField("min_transfer_time", IntegerField, Optional).atLeast(0),
	},
}

var pathwaysTable = &Table{
	Name:        "pathways",
	Requirement: Optional,
	Fields: []*Field{
		newField("pathway_id", StringField, Required),
		newField("from_stop_id", StringField, Required).refs("stops"),
		newField("to_stop_id", StringField, Required).refs("stops"),
		newField("pathway_mode", ShortField, Required).bounds(1, 7),
		newField("is_bidirectional", BooleanField, Required),
		newField("length", DoubleField, Optional).atLeast(0),
		newField("traversal_time", IntegerField, Optional).atLeast(1),
		newField("stair_count", IntegerField, Optional),
		newField("max_slope", DoubleField, Optional),
		newField("min_width", DoubleField, Optional).atLeast(0),
		newField("signposted_as", StringField, Optional),
		newField("reversed_signposted_as", StringField, Optional),
	},
}

var attributionsTable = &Table{
	Name:        "attributions",
	Requirement: Optional,
	Fields: []*Field{
		newField("attribution_id", StringField, Optional),
		newField("agency_id", StringField, Optional).refs("agency"),
		newField("route_id", StringField, Optional).refs("routes"),
		newField("trip_id", StringField, Optional).refs("trips"),
		newField("organization_name", StringField, Required),
		newField("is_producer", ShortField, Optional).bounds(0, 1),
		newField("is_operator", ShortField, Optional).bounds(0, 1),
		newField("is_authority", ShortField, Optional).bounds(0, 1),
		newField("attribution_url", URLField, Optional),
		newField("attribution_email", StringField, Optional),
		newField("attribution_phone", StringField, Optional),
	},
}

var translationsTable = &Table{
	Name:        "translations",
	Requirement: Optional,
	NonUnique:   true,
	Fields: []*Field{
		newField("table_name", StringField, Required),
		newField("field_name", StringField, Required),
		newField("language", LanguageField, Required),
		newField("translation", StringField, Required),
		newField("record_id", StringField, Optional),
		newField("record_sub_id", StringField, Optional),
		newField("field_value", StringField, Optional),
	},
}
