package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"deid-export/internal/config"
	dcm "deid-export/internal/dicom"
	"deid-export/internal/filename"
	"deid-export/internal/override"
	"deid-export/internal/profile"
)

// WriteProfiles merges the override table into the profile and writes one
// deid_<code>.yml per subject to dir. Subjects that fail to merge are
// listed on out and counted in the returned error; the rest are written.
func WriteProfiles(out io.Writer, profilePath, overridesPath, dir string, cfg *config.Config) error {
	base, err := LoadProfile(profilePath, nil, cfg)
	if err != nil {
		return err
	}
	profiles, errs, err := ReadOverrides(overridesPath, base, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create profile folder: %w", err)
	}

	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows [][]string
	for _, key := range keys {
		p := profiles[key]
		code, ok := override.SubjectCode(p)
		if !ok || code == "" {
			code = key
		}
		data, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("could not write profile for %s: %w", key, err)
		}
		target := filepath.Join(dir, "deid_"+filename.Safe(code)+".yml")
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("could not write profile for %s: %w", key, err)
		}
		rows = append(rows, []string{key, code, target})
	}

	fmt.Fprintln(out, renderTable([]string{"Subject", "Code", "Profile"}, rows, nil))
	for _, e := range errs {
		fmt.Fprintf(out, "Error: %v\n", e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d subject(s) could not be merged", len(errs))
	}
	return nil
}

// Validate loads the profile and, when given, merges the override table,
// reporting every problem found.
func Validate(out io.Writer, profilePath, overridesPath string, cfg *config.Config) error {
	base, err := LoadProfile(profilePath, nil, cfg)
	if err != nil {
		return err
	}

	var rows [][]string
	for kind, fp := range base.Formats {
		rows = append(rows, []string{
			string(kind),
			strconv.Itoa(len(fp.Fields)),
			strconv.Itoa(len(fp.Filenames)),
			strconv.FormatBool(fp.Strict),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	fmt.Fprintln(out, renderTable(
		[]string{"Format", "Field rules", "Filename rules", "Strict"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))

	if overridesPath == "" {
		fmt.Fprintln(out, "Profile is valid")
		return nil
	}
	profiles, errs, err := ReadOverrides(overridesPath, base, cfg)
	if err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintf(out, "Error: %v\n", e)
	}
	fmt.Fprintf(out, "%d subject(s) valid, %d invalid\n", len(profiles), len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("%d subject(s) could not be merged", len(errs))
	}
	return nil
}

// WriteStarterProfile writes the built-in DICOM starter profile to path,
// refusing to overwrite an existing file.
func WriteStarterProfile(out io.Writer, path string, dateIncrement int) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	p, err := dcm.StarterProfile(dateIncrement)
	if err != nil {
		return err
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write profile: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s (%d DICOM field rules)\n", path, len(p.Format(profile.KindDICOM).Fields))
	return nil
}
