package gtfsdb

import (
	"strconv"
	"strings"
)

// referenceTracker accumulates cross-row and cross-table state for one feed
// load: which scoped key values have been seen, which (key, sequence) pairs
// exist, and every value observed for columns that conditional rules scan.
// It is single-writer, owned by the load operation, and discarded when the
// load finishes.
//
// Referential checks only succeed if the referenced table was loaded
// earlier; that ordering is enforced by loadOrder, not here. For the same
// reason "value exists in column" checks are backward-looking: they see
// values recorded so far, so a forward reference within one file is
// reported as a finding.
type referenceTracker struct {
	transitIDs  map[string]struct{}            // "table:field:value"
	sequenceIDs map[sequenceKey]struct{}       // compound-key rows seen
	fieldValues map[string]map[string]struct{} // field name -> values seen
	rowCounts   map[string]int
}

func newReferenceTracker() *referenceTracker {
	return &referenceTracker{
		transitIDs:  make(map[string]struct{}),
		sequenceIDs: make(map[sequenceKey]struct{}),
		fieldValues: make(map[string]map[string]struct{}),
		rowCounts:   make(map[string]int),
	}
}

func scopedID(table, field, value string) string {
	return table + ":" + field + ":" + value
}

// rowKey identifies one data row for uniqueness checks: the key field's
// value plus, for compound-key tables, the order field's raw value and its
// parsed sequence (NoSequence when unparseable).
type rowKey struct {
	value    string
	order    string
	sequence int64
}

// sequenceKey scopes compound-key uniqueness. Key and order are held as
// separate components so values containing separator characters cannot
// collide.
type sequenceKey struct {
	table string
	key   string
	order string
}

// countRow registers one data row of table. Must be called exactly once per
// streamed row, before any per-field checks for that row.
func (tr *referenceTracker) countRow(table *Table) {
	tr.rowCounts[table.Name]++
}

// recordValue feeds the whole-column multimap for fields that conditional
// rules scan (e.g. stops.zone_id).
func (tr *referenceTracker) recordValue(field, value string) {
	if value == "" {
		return
	}
	set, ok := tr.fieldValues[field]
	if !ok {
		set = make(map[string]struct{})
		tr.fieldValues[field] = set
	}
	set[value] = struct{}{}
}

func (tr *referenceTracker) hasValue(field, value string) bool {
	_, ok := tr.fieldValues[field][value]
	return ok
}

// checkReferencesAndUniqueness runs the duplicate-key and foreign-key
// checks for one field of one row. key carries the row's key value and,
// for compound-key tables, its order value. Empty optional values are
// exempt from everything.
func (tr *referenceTracker) checkReferencesAndUniqueness(key rowKey, line int64, field *Field, value string, table *Table) []*GTFSError {
	if value == "" && !field.isRequired() {
		return nil
	}

	var errs []*GTFSError

	if len(field.Refs) > 0 && value != "" {
		found := false
		for _, ref := range field.Refs {
			refTable := tableByName(ref)
			if refTable == nil {
				continue
			}
			if _, ok := tr.transitIDs[scopedID(ref, refTable.KeyFieldName(), value)]; ok {
				found = true
				break
			}
		}
		if !found {
			e := newGTFSError(ErrReferentialIntegrity, table.Name, line, value)
			e.addInfo("field", field.Name)
			e.addInfo("referenced_tables", strings.Join(field.Refs, ","))
			errs = append(errs, e)
		}
	}

	if field.Name == table.KeyFieldName() && value != "" {
		id := scopedID(table.Name, field.Name, value)
		switch {
		case table.CompoundKey:
			// Uniqueness scope is (key, order); the bare key is still
			// recorded so later tables can reference it.
			tr.transitIDs[id] = struct{}{}
			sk := sequenceKey{table: table.Name, key: key.value, order: key.order}
			if _, dup := tr.sequenceIDs[sk]; dup {
				e := newGTFSError(ErrDuplicateID, table.Name, line, value)
				e.EntityID = value
				e.Sequence = key.sequence
				errs = append(errs, e)
			} else {
				tr.sequenceIDs[sk] = struct{}{}
			}
		case table.hasUniqueKeyField():
			if _, dup := tr.transitIDs[id]; dup {
				e := newGTFSError(ErrDuplicateID, table.Name, line, value)
				e.EntityID = value
				errs = append(errs, e)
			} else {
				tr.transitIDs[id] = struct{}{}
			}
		default:
			// Plain FK-compatible key: recorded without duplicate checking.
			tr.transitIDs[id] = struct{}{}
		}
	}

	if allTrackedValueFields[field.Name] {
		tr.recordValue(field.Name, value)
	}

	return errs
}

// checkConditionallyRequiredFields evaluates every conditional rule of the
// table against one complete row. rowValues maps resolved field names to
// raw values.
func (tr *referenceTracker) checkConditionallyRequiredFields(table *Table, rowValues map[string]string, line int64) []*GTFSError {
	var errs []*GTFSError
	for field, conditions := range table.conditionalRequirements() {
		for _, c := range conditions {
			if e := tr.evalCondition(table, field, c, rowValues, line); e != nil {
				errs = append(errs, e)
			}
		}
	}
	return errs
}

func (tr *referenceTracker) evalCondition(table *Table, field *Field, c Condition, rowValues map[string]string, line int64) *GTFSError {
	dependent := rowValues[c.Dependent]

	switch c.Check {
	case FieldInRange:
		ref := rowValues[c.Reference]
		if ref == "" {
			return nil
		}
		v, err := strconv.ParseInt(ref, 10, 64)
		if err != nil || v < c.Min || v > c.Max {
			return nil
		}
		if dependent == "" {
			e := newGTFSError(ErrConditionallyRequired, table.Name, line, "")
			e.addInfo("field", c.Dependent)
			e.addInfo("condition_field", c.Reference)
			e.addInfo("condition_value", ref)
			return e
		}
	case FieldEmpty:
		if rowValues[c.Reference] != "" {
			return nil
		}
		if dependent == "" {
			e := newGTFSError(ErrConditionallyRequired, table.Name, line, "")
			e.addInfo("field", c.Dependent)
			e.addInfo("condition_field", c.Reference)
			return e
		}
	case FieldValueMatch:
		own := rowValues[field.Name]
		if own == "" {
			return nil
		}
		if !tr.hasValue(c.ValueField, own) {
			e := newGTFSError(ErrReferentialIntegrity, table.Name, line, own)
			e.addInfo("field", field.Name)
			e.addInfo("referenced_field", c.ValueField)
			return e
		}
	case RowCountGreaterThanOne:
		if tr.rowCounts[c.CountTable] <= 1 {
			return nil
		}
		if dependent == "" {
			kind := ErrConditionallyRequired
			if c.Dependent == "agency_id" {
				kind = ErrAgencyIDRequired
			}
			e := newGTFSError(kind, table.Name, line, "")
			e.addInfo("field", c.Dependent)
			e.addInfo("condition_table", c.CountTable)
			return e
		}
	}
	return nil
}
