package override

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/profile"
)

const baseProfile = `
name: base
dicom:
  date-increment: -30
  fields:
    - name: PatientName
      remove: true
    - name: PatientID
      replace-with: PLACEHOLDER
`

func loadBase(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Load([]byte(baseProfile))
	require.NoError(t, err)
	return p
}

func get(t *testing.T, p *profile.Profile, path string) string {
	t.Helper()
	v, ok := p.Get(path)
	require.True(t, ok, path)
	return v
}

func TestReadTable(t *testing.T) {
	table, err := ReadTable(strings.NewReader(
		"\ufeffsubject.code, dicom.date-increment ,export.subject.code\n"+
			"P001,-10,\n"+
			" P002 ,5,CODE-2\n"), "")
	require.NoError(t, err)

	assert.True(t, table.HasKey)
	assert.Equal(t, DefaultKeyColumn, table.KeyColumn)
	assert.Equal(t, []string{"dicom.date-increment", "export.subject.code"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "P001", table.Rows[0].Key)
	assert.Equal(t, 2, table.Rows[0].Line)
	assert.Equal(t, map[string]string{"dicom.date-increment": "-10", "export.subject.code": ""}, table.Rows[0].Cells)
	assert.Equal(t, "P002", table.Rows[1].Key)
	assert.Equal(t, 3, table.Rows[1].Line)
}

func TestReadTableCustomKey(t *testing.T) {
	table, err := ReadTable(strings.NewReader("folder,dicom.date-increment\nA,1\n"), "folder")
	require.NoError(t, err)
	assert.True(t, table.HasKey)
	assert.Equal(t, "A", table.Rows[0].Key)
}

func TestReadTableRejects(t *testing.T) {
	_, err := ReadTable(strings.NewReader(""), "")
	assert.Error(t, err)

	_, err = ReadTable(strings.NewReader("subject.code,a\nP1,1,extra\n"), "")
	assert.Error(t, err)
}

func TestMergeAll(t *testing.T) {
	base := loadBase(t)
	table, err := ReadTable(strings.NewReader(
		"subject.code,dicom.fields.PatientID.replace-with,dicom.date-increment,export.subject.code\n"+
			"P001,SUBJ-001,-10,\n"+
			"P002,,5,CODE-2\n"+
			"P003,,,\n"), "")
	require.NoError(t, err)

	profiles, errs := Merger{}.MergeAll(base, table)
	require.Empty(t, errs)
	require.Len(t, profiles, 3)

	p1 := profiles["P001"]
	assert.Equal(t, "SUBJ-001", get(t, p1, "dicom.fields.PatientID.replace-with"))
	assert.Equal(t, "-10", get(t, p1, "dicom.date-increment"))
	code, ok := SubjectCode(p1)
	assert.True(t, ok)
	assert.Equal(t, "SUBJ-001", code)

	p2 := profiles["P002"]
	assert.Equal(t, "CODE-2", get(t, p2, "dicom.fields.PatientID.replace-with"))
	assert.Equal(t, "5", get(t, p2, "dicom.date-increment"))
	code, _ = SubjectCode(p2)
	assert.Equal(t, "CODE-2", code)

	p3 := profiles["P003"]
	assert.Equal(t, "-30", get(t, p3, "dicom.date-increment"))
	code, _ = SubjectCode(p3)
	assert.Equal(t, "PLACEHOLDER", code)

	assert.Equal(t, "PLACEHOLDER", get(t, base, "dicom.fields.PatientID.replace-with"))
	assert.Equal(t, -30, base.Format(profile.KindDICOM).DateIncrement)
	_, ok = SubjectCode(base)
	assert.False(t, ok)
}

func TestMergeExplicitCodeAndRuleBothSet(t *testing.T) {
	row := Row{Key: "P9", Line: 2, Cells: map[string]string{
		"dicom.fields.PatientID.replace-with": "RULE-VALUE",
		"export.subject.code":                 "FOLDER-CODE",
	}}
	p, err := Merge(loadBase(t), row)
	require.NoError(t, err)

	assert.Equal(t, "RULE-VALUE", get(t, p, "dicom.fields.PatientID.replace-with"))
	code, _ := SubjectCode(p)
	assert.Equal(t, "FOLDER-CODE", code)
}

func TestMergeFallsBackToKey(t *testing.T) {
	base, err := profile.Load([]byte("jpg:\n  remove-gps: true\n"))
	require.NoError(t, err)

	p, err := Merge(base, Row{Key: "P7", Line: 2, Cells: map[string]string{}})
	require.NoError(t, err)
	code, _ := SubjectCode(p)
	assert.Equal(t, "P7", code)
}

func TestMergeCustomSubjectField(t *testing.T) {
	base, err := profile.Load([]byte(`
xml:
  fields:
    - name: //PatientID
      replace-with: XML-CODE
`))
	require.NoError(t, err)

	m := Merger{SubjectField: "xml.fields.//PatientID.replace-with"}
	p, err := m.Merge(base, Row{Key: "P1", Line: 2, Cells: map[string]string{}}, nil)
	require.NoError(t, err)
	code, _ := SubjectCode(p)
	assert.Equal(t, "XML-CODE", code)
}

func TestMergeAllRowErrors(t *testing.T) {
	base := loadBase(t)
	table, err := ReadTable(strings.NewReader(
		"subject.code,dicom.date-increment,dicom.fields.Missing.remove\n"+
			"P001,abc,\n"+
			"P002,,true\n"+
			",1,\n"+
			"P004,1,\n"+
			"P004,2,\n"+
			"P005,3,\n"), "")
	require.NoError(t, err)

	profiles, errs := Merger{}.MergeAll(base, table)
	require.Len(t, profiles, 1)
	assert.Contains(t, profiles, "P005")
	require.Len(t, errs, 5)

	var merr *MergeError
	require.ErrorAs(t, errs[0], &merr)
	assert.Equal(t, "P001", merr.Key)
	assert.Equal(t, 2, merr.Line)
	assert.Equal(t, "dicom.date-increment", merr.Column)

	require.ErrorAs(t, errs[1], &merr)
	assert.Equal(t, "dicom.fields.Missing.remove", merr.Column)
	assert.ErrorIs(t, errs[1], profile.ErrUnknownPath)

	assert.ErrorIs(t, errs[2], ErrEmptyKey)
	assert.ErrorIs(t, errs[3], ErrDuplicateKey)
	assert.ErrorIs(t, errs[4], ErrDuplicateKey)
	assert.Contains(t, errs[3].Error(), "subject P004")
}

func TestMergeAllMissingKeyColumn(t *testing.T) {
	table, err := ReadTable(strings.NewReader("folder,dicom.date-increment\nA,1\nB,2\n"), "")
	require.NoError(t, err)
	assert.False(t, table.HasKey)

	profiles, errs := Merger{}.MergeAll(loadBase(t), table)
	assert.Empty(t, profiles)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrMissingKeyColumn))
	}
}

func TestMergeErrorMessage(t *testing.T) {
	err := &MergeError{Key: "P1", Line: 4, Column: "dicom.date-increment", Err: errors.New("boom")}
	assert.Equal(t, "override row 4 (subject P1) column dicom.date-increment: boom", err.Error())

	err = &MergeError{Line: 5, Err: errors.New("boom")}
	assert.Equal(t, "override row 5: boom", err.Error())
}
