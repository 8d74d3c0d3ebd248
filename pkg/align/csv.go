// Tabular snapshot interchange
//
// The export format has one row per axis identifier and one column
// per alignment name, with an index column naming each axis:
//
//	axis,park,peak_a
//	x,0.5,4.0
//	y,1.0,6.0
//
// Loading reconstructs the name to position mapping exactly; rows
// whose axis identifier is unknown to the current axis space are
// rejected and reported, not silently dropped.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package align

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"alignd/pkg/errors"
)

const csvIndexHeader = "axis"

// ExportCSV writes the full snapshot table.
func (s *Store) ExportCSV(w io.Writer) error {
	table := s.All()
	names := s.Names()

	axisSet := make(map[string]bool)
	for _, snap := range table {
		for axis := range snap {
			axisSet[axis] = true
		}
	}
	axisIDs := make([]string, 0, len(axisSet))
	for axis := range axisSet {
		axisIDs = append(axisIDs, axis)
	}
	sort.Strings(axisIDs)

	cw := csv.NewWriter(w)
	header := append([]string{csvIndexHeader}, names...)
	if err := cw.Write(header); err != nil {
		return errors.StoreError("export", err)
	}
	for _, axis := range axisIDs {
		row := make([]string, 0, len(names)+1)
		row = append(row, axis)
		for _, name := range names {
			pos, ok := table[name][axis]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(pos, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return errors.StoreError("export", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.StoreError("export", err)
	}
	return nil
}

// ImportCSV loads snapshots from the tabular format, merging rows with
// recognized axis identifiers into the store. Rows whose axis is not
// accepted by the known predicate are skipped and reported through the
// returned INVALID_AXIS error; recognized rows are still loaded.
func (s *Store) ImportCSV(r io.Reader, known func(axis string) bool) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return errors.StoreError("import", err)
	}
	if len(header) < 1 || header[0] != csvIndexHeader {
		return errors.StoreError("import", fmt.Errorf("missing '%s' index column", csvIndexHeader))
	}
	names := header[1:]

	var rejected []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.StoreError("import", err)
		}
		if len(row) == 0 {
			continue
		}
		axis := row[0]
		if known != nil && !known(axis) {
			rejected = append(rejected, axis)
			continue
		}
		for i, name := range names {
			if i+1 >= len(row) || row[i+1] == "" {
				continue
			}
			pos, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return errors.StoreError("import",
					fmt.Errorf("bad position '%s' for axis '%s' in alignment '%s'", row[i+1], axis, name))
			}
			s.merge(name, axis, pos)
		}
	}

	if len(rejected) > 0 {
		return errors.New(errors.ErrInvalidAxis,
			fmt.Sprintf("rejected rows for unrecognized axes: %s", strings.Join(rejected, ", ")))
	}
	return nil
}
