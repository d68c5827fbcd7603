package dicom

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	"deid-export/internal/profile"
)

// starterRemove are cleared by the starter profile.
var starterRemove = []tag.Tag{
	// Patient identifiers
	tag.PatientName,
	tag.PatientAddress,
	tag.PatientTelephoneNumbers,
	tag.OtherPatientIDs,
	tag.OtherPatientIDsSequence,
	tag.PatientBirthTime,
	tag.PatientMotherBirthName,
	tag.MilitaryRank,
	tag.EthnicGroup,
	tag.PatientReligiousPreference,
	tag.PatientComments,

	// Institution information (InstitutionName kept for research tracking)
	tag.InstitutionAddress,
	tag.InstitutionalDepartmentName,
	tag.StationName,

	// Physician information
	tag.ReferringPhysicianName,
	tag.ReferringPhysicianAddress,
	tag.ReferringPhysicianTelephoneNumbers,
	tag.PerformingPhysicianName,
	tag.OperatorsName,
	tag.PhysiciansOfRecord,
	tag.NameOfPhysiciansReadingStudy,
	tag.RequestingPhysician,
	tag.ScheduledPerformingPhysicianName,

	// Other identifiers
	tag.RequestAttributesSequence,
	tag.PerformedProcedureStepID,
	tag.ScheduledProcedureStepID,
}

// starterHash are replaced by salted hashes so studies still group.
var starterHash = []tag.Tag{
	tag.PatientID,
	tag.AccessionNumber,
	tag.StudyID,
}

// starterDates are shifted by the profile's date-increment.
var starterDates = []tag.Tag{
	tag.PatientBirthDate,
	tag.StudyDate,
	tag.SeriesDate,
	tag.AcquisitionDate,
	tag.ContentDate,
	tag.InstanceCreationDate,
}

var starterUIDs = []tag.Tag{
	tag.StudyInstanceUID,
	tag.SeriesInstanceUID,
	tag.SOPInstanceUID,
	tag.FrameOfReferenceUID,
}

// StarterProfile returns a DICOM profile covering the common patient,
// physician and institution attributes. Dates move by dateIncrement days
// and PatientAge is recomputed from the shifted birth date.
func StarterProfile(dateIncrement int) (*profile.Profile, error) {
	var b strings.Builder
	b.WriteString("name: starter\n")
	b.WriteString("description: Common patient, physician and institution attributes\n")
	b.WriteString("dicom:\n")
	fmt.Fprintf(&b, "  date-increment: %d\n", dateIncrement)
	b.WriteString("  remove-private-tags: true\n")
	b.WriteString("  patient-age-from-birthdate: true\n")
	b.WriteString("  fields:\n")

	rules := []struct {
		action string
		tags   []tag.Tag
	}{
		{"hash", starterHash},
		{"remove", starterRemove},
		{"increment-date", starterDates},
		{"hashuid", starterUIDs},
	}
	for _, r := range rules {
		for _, t := range r.tags {
			fmt.Fprintf(&b, "    - name: %s\n      %s: true\n", keyword(t), r.action)
		}
	}

	return profile.Load([]byte(b.String()))
}
