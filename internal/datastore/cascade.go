// cascade.go: validation cascade run after a successful publication
package datastore

import (
	"gorm.io/gorm"

	"github.com/mousetube/mousetube-go/internal/errors"
)

// ValidateSessionGraph flips the status of every descriptive entity reachable
// from a published session to validated: protocol, laboratory, studies,
// animal profiles, strains reached through those profiles, acquisition
// software (through the session's software versions), each hardware role, and
// bibliographic references both directly attached and attached to the
// validated software and hardware. The session itself becomes published.
// Runs in one transaction so a crash mid-cascade leaves no half-validated
// graph behind.
func (ds *DataStore) ValidateSessionGraph(sessionID uint) error {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return err
	}

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&RecordingSession{}).
			Where("id = ?", session.ID).
			Update("status", SessionStatusPublished).Error; err != nil {
			return err
		}

		if session.ProtocolID != nil {
			if err := validateByID(tx, &Protocol{}, *session.ProtocolID); err != nil {
				return err
			}
		}
		if session.LaboratoryID != nil {
			if err := validateByID(tx, &Laboratory{}, *session.LaboratoryID); err != nil {
				return err
			}
		}

		if err := validateByID(tx, &Study{}, idsOfStudies(session.Studies)...); err != nil {
			return err
		}

		profileIDs := make([]uint, 0, len(session.AnimalProfiles))
		strainIDs := make(map[uint]struct{})
		for i := range session.AnimalProfiles {
			profileIDs = append(profileIDs, session.AnimalProfiles[i].ID)
			if session.AnimalProfiles[i].StrainID != nil {
				strainIDs[*session.AnimalProfiles[i].StrainID] = struct{}{}
			}
		}
		if err := validateByID(tx, &AnimalProfile{}, profileIDs...); err != nil {
			return err
		}
		if err := validateByID(tx, &Strain{}, keys(strainIDs)...); err != nil {
			return err
		}

		versionIDs := make([]uint, 0, len(session.SoftwareVersions))
		softwareIDs := make(map[uint]struct{})
		referenceIDs := make(map[uint]struct{})
		for i := range session.SoftwareVersions {
			sv := &session.SoftwareVersions[i]
			versionIDs = append(versionIDs, sv.ID)
			softwareIDs[sv.SoftwareID] = struct{}{}
			if sv.Software != nil {
				collectReferenceIDs(referenceIDs, sv.Software.References)
			}
		}
		if err := validateByID(tx, &SoftwareVersion{}, versionIDs...); err != nil {
			return err
		}
		if err := validateByID(tx, &Software{}, keys(softwareIDs)...); err != nil {
			return err
		}

		hardwareIDs := make([]uint, 0)
		for _, role := range [][]Hardware{session.Soundcards, session.Speakers, session.Amplifiers, session.Microphones} {
			for i := range role {
				hardwareIDs = append(hardwareIDs, role[i].ID)
				collectReferenceIDs(referenceIDs, role[i].References)
			}
		}
		if err := validateByID(tx, &Hardware{}, hardwareIDs...); err != nil {
			return err
		}

		collectReferenceIDs(referenceIDs, session.References)
		if session.Protocol != nil {
			collectReferenceIDs(referenceIDs, session.Protocol.References)
		}
		return validateByID(tx, &Reference{}, keys(referenceIDs)...)
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return nil
}

// MarkValidLinks sets is_valid_link on every file of the session whose
// processing reached the terminal done state. Returns the number of files
// updated.
func (ds *DataStore) MarkValidLinks(sessionID uint) (int64, error) {
	res := ds.DB.Model(&File{}).
		Where("recording_session_id = ?", sessionID).
		Where("status = ?", FileStatusDone).
		Update("is_valid_link", true)
	if res.Error != nil {
		return 0, errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return res.RowsAffected, nil
}

func validateByID(tx *gorm.DB, model any, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Model(model).Where("id IN ?", ids).Update("status", StatusValidated).Error
}

func idsOfStudies(studies []Study) []uint {
	ids := make([]uint, 0, len(studies))
	for i := range studies {
		ids = append(ids, studies[i].ID)
	}
	return ids
}

func collectReferenceIDs(dst map[uint]struct{}, refs []Reference) {
	for i := range refs {
		dst[refs[i].ID] = struct{}{}
	}
}

func keys(m map[uint]struct{}) []uint {
	out := make([]uint, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
