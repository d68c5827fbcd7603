package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/config"
	"deid-export/internal/profile"
)

const xmlProfile = `
name: study-export
xml:
  date-increment: -1
  fields:
    - name: //PatientID
      replace-with: PLACEHOLDER
    - name: //Name
      remove: true
`

func write(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func study(id string) string {
	return "<Study><PatientID>" + id + "</PatientID><Name>Jane Doe</Name></Study>"
}

func xmlConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.Salt = "test"
	cfg.Overrides.SubjectField = "xml.fields.//PatientID.replace-with"
	return &cfg
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := write(t, filepath.Join(dir, "profile.yml"), xmlProfile+"dicom:\n  date-increment: -30\n")

	p, err := LoadProfile(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, p.Format(profile.KindXML).DateIncrement)

	cfg := config.Default()
	shift := -5
	cfg.Run.DateIncrement = &shift
	p, err = LoadProfile(path, nil, &cfg)
	require.NoError(t, err)
	assert.Equal(t, -5, p.Format(profile.KindXML).DateIncrement)
	assert.Equal(t, -5, p.Format(profile.KindDICOM).DateIncrement)

	flag := 7
	p, err = LoadProfile(path, &flag, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Format(profile.KindDICOM).DateIncrement)

	_, err = LoadProfile("", nil, nil)
	assert.Error(t, err)
}

func TestRunFolder(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	write(t, filepath.Join(in, "a.xml"), study("MRN-1"))
	write(t, filepath.Join(in, "nested", "b.xml"), study("MRN-2"))
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)

	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Input:       in,
		ProfilePath: profilePath,
		Output:      filepath.Join(dir, "out"),
		Config:      xmlConfig(),
		Stdout:      &out,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "out", "nested", "b.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "PLACEHOLDER")
	assert.NotContains(t, string(got), "Jane")
	assert.Contains(t, out.String(), "Profile:   study-export")
	assert.Contains(t, out.String(), "Succeeded")
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	write(t, filepath.Join(in, "a.xml"), study("MRN-1"))
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), Options{
		Input:       in,
		ProfilePath: profilePath,
		DryRun:      true,
		Config:      xmlConfig(),
		Stdout:      &out,
	}))
	assert.Contains(t, out.String(), "[DRY RUN MODE]")
	assert.NoDirExists(t, filepath.Join(in, "deidentified"))
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	input := write(t, filepath.Join(dir, "a.xml"), study("MRN-1"))
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)

	require.NoError(t, Run(context.Background(), Options{
		Input:       input,
		ProfilePath: profilePath,
		Config:      xmlConfig(),
		Stdout:      &bytes.Buffer{},
	}))
	assert.FileExists(t, filepath.Join(dir, "deidentified", "a.xml"))

	broken := write(t, filepath.Join(dir, "broken.xml"), "<a attr=></a>")
	err := Run(context.Background(), Options{
		Input:       broken,
		ProfilePath: profilePath,
		Config:      xmlConfig(),
		Stdout:      &bytes.Buffer{},
	})
	assert.ErrorContains(t, err, "1 file(s) failed")

	notes := write(t, filepath.Join(dir, "notes.txt"), "hello")
	err = Run(context.Background(), Options{
		Input:       notes,
		ProfilePath: profilePath,
		Config:      xmlConfig(),
		Stdout:      &bytes.Buffer{},
	})
	assert.ErrorContains(t, err, "no profile block matches file")
}

func TestRunWithOverrides(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	write(t, filepath.Join(in, "P001", "a.xml"), study("MRN-1"))
	write(t, filepath.Join(in, "P002", "b.xml"), study("MRN-2"))
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)
	table := write(t, filepath.Join(dir, "subjects.csv"),
		"subject.code,export.subject.code,xml.date-increment\n"+
			"P001,SUBJ-A,-3\n"+
			"P002,SUBJ-B,\n"+
			"P003,SUBJ-C,\n")

	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Input:         in,
		ProfilePath:   profilePath,
		OverridesPath: table,
		Output:        filepath.Join(dir, "out"),
		Config:        xmlConfig(),
		Stdout:        &out,
	})
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(dir, "out", "SUBJ-A", "a.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(a), "<PatientID>SUBJ-A</PatientID>")
	b, err := os.ReadFile(filepath.Join(dir, "out", "SUBJ-B", "b.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<PatientID>SUBJ-B</PatientID>")
	assert.NoDirExists(t, filepath.Join(dir, "out", "SUBJ-C"))
	assert.Contains(t, out.String(), "Subjects:  2")
}

func TestRunRequiresFolderForOverrides(t *testing.T) {
	dir := t.TempDir()
	input := write(t, filepath.Join(dir, "a.xml"), study("MRN-1"))
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)
	table := write(t, filepath.Join(dir, "subjects.csv"), "subject.code\nP001\n")

	err := Run(context.Background(), Options{
		Input:         input,
		ProfilePath:   profilePath,
		OverridesPath: table,
		Config:        xmlConfig(),
		Stdout:        &bytes.Buffer{},
	})
	assert.ErrorContains(t, err, "input folder")

	err = Run(context.Background(), Options{Input: filepath.Join(dir, "missing"), ProfilePath: profilePath})
	assert.ErrorContains(t, err, "does not exist")
}

func TestWriteProfiles(t *testing.T) {
	dir := t.TempDir()
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)
	table := write(t, filepath.Join(dir, "subjects.csv"),
		"subject.code,xml.fields.//PatientID.replace-with,xml.date-increment\n"+
			"P001,SUBJ-A,-3\n"+
			"P002,SUBJ-B,oops\n")

	var out bytes.Buffer
	err := WriteProfiles(&out, profilePath, table, filepath.Join(dir, "profiles"), xmlConfig())
	assert.ErrorContains(t, err, "1 subject(s) could not be merged")
	assert.Contains(t, out.String(), "SUBJ-A")
	assert.Contains(t, out.String(), "Error: override row 3 (subject P002)")

	p, err := profile.LoadFile(filepath.Join(dir, "profiles", "deid_SUBJ-A.yml"))
	require.NoError(t, err)
	v, _ := p.Get("xml.fields.//PatientID.replace-with")
	assert.Equal(t, "SUBJ-A", v)
	assert.Equal(t, -3, p.Format(profile.KindXML).DateIncrement)
	assert.NoFileExists(t, filepath.Join(dir, "profiles", "deid_SUBJ-B.yml"))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	profilePath := write(t, filepath.Join(dir, "profile.yml"), xmlProfile)

	var out bytes.Buffer
	require.NoError(t, Validate(&out, profilePath, "", xmlConfig()))
	assert.Contains(t, out.String(), "Profile is valid")
	assert.Contains(t, out.String(), "xml")

	table := write(t, filepath.Join(dir, "subjects.csv"), "subject.code\nP001\nP001\nP002\n")
	out.Reset()
	err := Validate(&out, profilePath, table, xmlConfig())
	assert.Error(t, err)
	assert.Contains(t, out.String(), "1 subject(s) valid, 2 invalid")

	bad := write(t, filepath.Join(dir, "bad.yml"), "xml:\n  fields:\n    - name: //PatientID\n      shred: true\n")
	assert.Error(t, Validate(&out, bad, "", xmlConfig()))
}

func TestWriteStarterProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deid_profile.yml")

	var out bytes.Buffer
	require.NoError(t, WriteStarterProfile(&out, path, -14))
	assert.True(t, strings.HasPrefix(out.String(), "Wrote "+path))

	p, err := profile.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, -14, p.Format(profile.KindDICOM).DateIncrement)

	assert.ErrorContains(t, WriteStarterProfile(&out, path, -14), "already exists")
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	got := renderTable([]string{"Subject", "Count"}, [][]string{{"P001", "3"}, {"P002"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, got, "Subject")
	assert.Contains(t, got, "P001")
	assert.Contains(t, got, "│     3 │")
}

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer
	pb := newProgressBar(&out, 10)
	pb.update(0, 0)
	assert.Empty(t, out.String())
	pb.update(5, 10)
	assert.Equal(t, "\r[#####-----]  50%  (5/10)", out.String())
}
