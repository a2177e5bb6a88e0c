// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the publication pipeline needs.
type Interface interface {
	Open() error
	Close() error

	// files
	GetFile(id uint) (*File, error)
	SaveFile(file *File) error
	DeleteFile(id uint) error
	UpdateFileFields(file *File, fields ...string) error
	SessionFiles(sessionID uint) ([]File, error)
	EligibleFiles(sessionID uint) ([]File, error)

	// sessions
	GetSession(id uint) (*RecordingSession, error)
	SaveSession(session *RecordingSession) error
	UpdateSessionFields(session *RecordingSession, fields ...string) error

	// repositories
	GetRepositoryByName(name string) (*Repository, error)
	GetOrCreateRepository(name string) (*Repository, error)

	// deposition claims, see DepositionClaim
	AcquireDepositionClaim(sessionID uint) (claim *DepositionClaim, acquired bool, err error)
	SetClaimDeposition(sessionID uint, depositionID string) error
	ReleaseDepositionClaim(sessionID uint) error

	// publication cascade
	ValidateSessionGraph(sessionID uint) error
	MarkValidLinks(sessionID uint) (int64, error)

	// user profiles, for deposition creator metadata
	GetUserProfile(userID uint) (*UserProfile, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting generic database object: %w", err)
	}
	return sqlDB.Close()
}

// GetFile retrieves a file by ID with the relations the pipeline reads.
func (ds *DataStore) GetFile(id uint) (*File, error) {
	var file File
	err := ds.DB.
		Preload("Repository").
		Preload("CreatedBy").
		First(&file, id).Error
	if err != nil {
		return nil, wrapRecordErr(err, "file", id)
	}
	return &file, nil
}

// SaveFile persists a file record, creating it if needed.
func (ds *DataStore) SaveFile(file *File) error {
	if err := ds.DB.Save(file).Error; err != nil {
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// DeleteFile removes a file record.
func (ds *DataStore) DeleteFile(id uint) error {
	if err := ds.DB.Delete(&File{}, id).Error; err != nil {
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// UpdateFileFields persists only the named columns of a file. The pipeline
// never writes whole rows; each step owns its own field group.
func (ds *DataStore) UpdateFileFields(file *File, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	err := ds.DB.Model(file).Select(fields).Updates(file).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("file_id", file.ID).
			Build()
	}
	return nil
}

// SessionFiles returns all files attached to a session.
func (ds *DataStore) SessionFiles(sessionID uint) ([]File, error) {
	var files []File
	err := ds.DB.
		Preload("Repository").
		Preload("CreatedBy").
		Where("recording_session_id = ?", sessionID).
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return files, nil
}

// EligibleFiles returns the files of a session that may be uploaded to a
// deposition: status not pending/processing/error and no DOI of their own.
func (ds *DataStore) EligibleFiles(sessionID uint) ([]File, error) {
	var files []File
	err := ds.DB.
		Preload("Repository").
		Preload("CreatedBy").
		Where("recording_session_id = ?", sessionID).
		Where("status NOT IN ?", []FileStatus{FileStatusPending, FileStatusProcessing, FileStatusError}).
		Where("doi = ? OR doi IS NULL", "").
		Order("id").
		Find(&files).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return files, nil
}

// GetSession retrieves a session with the full relation graph the publication
// cascade walks.
func (ds *DataStore) GetSession(id uint) (*RecordingSession, error) {
	var session RecordingSession
	err := ds.DB.
		Preload("Protocol").
		Preload("Protocol.References").
		Preload("Laboratory").
		Preload("Studies").
		Preload("AnimalProfiles").
		Preload("AnimalProfiles.Strain").
		Preload("AnimalProfiles.Strain.Species").
		Preload("SoftwareVersions").
		Preload("SoftwareVersions.Software").
		Preload("SoftwareVersions.Software.References").
		Preload("Soundcards").
		Preload("Soundcards.References").
		Preload("Speakers").
		Preload("Speakers.References").
		Preload("Amplifiers").
		Preload("Amplifiers.References").
		Preload("Microphones").
		Preload("Microphones.References").
		Preload("References").
		Preload("CreatedBy").
		First(&session, id).Error
	if err != nil {
		return nil, wrapRecordErr(err, "recording session", id)
	}
	return &session, nil
}

// SaveSession persists a session record.
func (ds *DataStore) SaveSession(session *RecordingSession) error {
	if err := ds.DB.Save(session).Error; err != nil {
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// UpdateSessionFields persists only the named columns of a session.
func (ds *DataStore) UpdateSessionFields(session *RecordingSession, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	err := ds.DB.Model(session).Select(fields).Updates(session).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", session.ID).
			Build()
	}
	return nil
}

// GetRepositoryByName looks up a repository record by its exact name.
func (ds *DataStore) GetRepositoryByName(name string) (*Repository, error) {
	var repo Repository
	err := ds.DB.Where("name = ?", name).First(&repo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("repository %q not found", name).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return &repo, nil
}

// GetOrCreateRepository returns the repository row with the given name,
// creating it when absent.
func (ds *DataStore) GetOrCreateRepository(name string) (*Repository, error) {
	var repo Repository
	err := ds.DB.Where(Repository{Name: name}).FirstOrCreate(&repo).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("repository", name).
			Build()
	}
	return &repo, nil
}

// AcquireDepositionClaim inserts the per-session claim row. The caller that
// gets acquired=true is the only one allowed to create a remote draft; every
// other caller receives the existing claim. The unique index on the session
// column is what closes the create/reuse race.
func (ds *DataStore) AcquireDepositionClaim(sessionID uint) (*DepositionClaim, bool, error) {
	claim := DepositionClaim{RecordingSessionID: sessionID}
	res := ds.DB.Where(DepositionClaim{RecordingSessionID: sessionID}).FirstOrCreate(&claim)
	if res.Error != nil {
		// Two concurrent first uploads can both miss the read and race the
		// insert; the loser hits the unique index and must re-read the
		// winner's claim.
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			var existing DepositionClaim
			if err := ds.DB.Where("recording_session_id = ?", sessionID).First(&existing).Error; err != nil {
				return nil, false, errors.New(err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Context("session_id", sessionID).
					Build()
			}
			return &existing, false, nil
		}
		return nil, false, errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return &claim, res.RowsAffected > 0, nil
}

// SetClaimDeposition records the remote deposition id on a session's claim.
func (ds *DataStore) SetClaimDeposition(sessionID uint, depositionID string) error {
	err := ds.DB.Model(&DepositionClaim{}).
		Where("recording_session_id = ?", sessionID).
		Update("deposition_id", depositionID).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return nil
}

// ReleaseDepositionClaim removes a session's claim row. The winner calls this
// when draft creation fails, so a later attempt can claim again instead of
// waiting forever on a claim that will never carry a deposition id.
func (ds *DataStore) ReleaseDepositionClaim(sessionID uint) error {
	err := ds.DB.
		Where("recording_session_id = ?", sessionID).
		Delete(&DepositionClaim{}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session_id", sessionID).
			Build()
	}
	return nil
}

// GetUserProfile retrieves the profile of a user with its laboratory.
func (ds *DataStore) GetUserProfile(userID uint) (*UserProfile, error) {
	var profile UserProfile
	err := ds.DB.
		Preload("User").
		Preload("Laboratory").
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, wrapRecordErr(err, "user profile", userID)
	}
	return &profile, nil
}

// wrapRecordErr maps gorm's not-found onto the not-found category so callers
// can distinguish missing records from database failures.
func wrapRecordErr(err error, kind string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Newf("%s %d not found", kind, id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("id", id).
		Build()
}
