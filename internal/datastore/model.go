// model.go this code defines the data model for the mouseTube catalog
package datastore

import "time"

// FileStatus tracks a file through the processing pipeline. It is the
// authoritative progress marker for per-file background work.
type FileStatus string

const (
	FileStatusPending           FileStatus = "pending"
	FileStatusProcessing        FileStatus = "processing"
	FileStatusMetadataExtracted FileStatus = "metadata_extracted"
	FileStatusDone              FileStatus = "done"
	FileStatusError             FileStatus = "error"
)

// CanTransition reports whether moving from s to next is a legal step of the
// per-file state machine.
func (s FileStatus) CanTransition(next FileStatus) bool {
	switch s {
	case FileStatusPending:
		return next == FileStatusProcessing || next == FileStatusError
	case FileStatusProcessing:
		return next == FileStatusMetadataExtracted || next == FileStatusDone || next == FileStatusError
	case FileStatusMetadataExtracted:
		return next == FileStatusDone || next == FileStatusError
	case FileStatusError:
		// retry re-enters processing
		return next == FileStatusProcessing
	case FileStatusDone:
		return false
	default:
		return false
	}
}

// SessionStatus tracks a recording session from creation to publication.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusPublished SessionStatus = "published"
)

// ValidationStatus marks descriptive entities as publicly citable. The
// pipeline only ever moves entities from unvalidated to validated, never back.
type ValidationStatus string

const (
	StatusUnvalidated ValidationStatus = "unvalidated"
	StatusValidated   ValidationStatus = "validated"
)

// HardwareType enumerates the acquisition hardware roles of a session.
type HardwareType string

const (
	HardwareSoundcard  HardwareType = "soundcard"
	HardwareMicrophone HardwareType = "microphone"
	HardwareSpeaker    HardwareType = "speaker"
	HardwareAmplifier  HardwareType = "amplifier"
)

// User is the account that created catalog entries.
type User struct {
	ID        uint `gorm:"primaryKey"`
	Username  string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile carries the researcher-facing attributes of a User.
type UserProfile struct {
	ID           uint  `gorm:"primaryKey"`
	UserID       uint  `gorm:"uniqueIndex"`
	User         *User `gorm:"foreignKey:UserID"`
	Institution  string
	ORCID        string `gorm:"column:orcid"`
	LaboratoryID *uint
	Laboratory   *Laboratory `gorm:"foreignKey:LaboratoryID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository describes a target external archive, looked up by name to
// select an adapter. Read-mostly; the pipeline only creates the Zenodo row.
type Repository struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex"`
	Description string
	URL         string
	APIURL      string `gorm:"column:api_url"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reference is a bibliographic reference attached to sessions, protocols,
// software or hardware.
type Reference struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Description string
	URL         string
	DOI         string           `gorm:"column:doi"`
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Laboratory is the research group owning sessions.
type Laboratory struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Institution string
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Study groups sessions under a research question.
type Study struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Description string
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Species of the recorded subjects.
type Species struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Strain is a genetic line of a species.
type Strain struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex"`
	SpeciesID  *uint
	Species    *Species `gorm:"foreignKey:SpeciesID"`
	Background string
	Status     ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AnimalProfile describes one recorded subject.
type AnimalProfile struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	StrainID  *uint
	Strain    *Strain `gorm:"foreignKey:StrainID"`
	Sex       string
	Genotype  string
	Treatment string
	Status    ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Software is an acquisition or analysis tool.
type Software struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Type        string
	MadeBy      string
	Description string
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	References  []Reference      `gorm:"many2many:software_references"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SoftwareVersion pins a session to the exact tool release used.
type SoftwareVersion struct {
	ID         uint `gorm:"primaryKey"`
	SoftwareID uint `gorm:"index"`
	Software   *Software `gorm:"foreignKey:SoftwareID"`
	Version    string
	Status     ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Hardware is a piece of acquisition equipment, typed by role.
type Hardware struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Type        HardwareType `gorm:"type:varchar(20)"`
	MadeBy      string
	Description string
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	References  []Reference      `gorm:"many2many:hardware_references"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Protocol describes the experimental procedure of a session.
type Protocol struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Description string
	Status      ValidationStatus `gorm:"type:varchar(20);default:unvalidated"`
	References  []Reference      `gorm:"many2many:protocol_references"`
	CreatedByID *uint
	CreatedBy   *User `gorm:"foreignKey:CreatedByID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordingSession is the unit of publication: a set of files recorded under
// one protocol, published together to an external repository.
type RecordingSession struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Status      SessionStatus `gorm:"type:varchar(20);default:draft"`
	Date        string
	Duration    int // seconds
	Description string

	ProtocolID   *uint
	Protocol     *Protocol `gorm:"foreignKey:ProtocolID"`
	LaboratoryID *uint
	Laboratory   *Laboratory `gorm:"foreignKey:LaboratoryID"`

	Studies          []Study           `gorm:"many2many:session_studies"`
	AnimalProfiles   []AnimalProfile   `gorm:"many2many:session_animal_profiles"`
	SoftwareVersions []SoftwareVersion `gorm:"many2many:session_software_versions"`
	Soundcards       []Hardware        `gorm:"many2many:session_soundcards"`
	Speakers         []Hardware        `gorm:"many2many:session_speakers"`
	Amplifiers       []Hardware        `gorm:"many2many:session_amplifiers"`
	Microphones      []Hardware        `gorm:"many2many:session_microphones"`
	References       []Reference       `gorm:"many2many:session_references"`

	CreatedByID *uint
	CreatedBy   *User `gorm:"foreignKey:CreatedByID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// File is one uploaded recording. Belongs to at most one session; required
// for publication. Status is the authoritative progress marker.
type File struct {
	ID                 uint `gorm:"primaryKey"`
	RecordingSessionID *uint `gorm:"index"`
	RecordingSession   *RecordingSession `gorm:"foreignKey:RecordingSessionID"`

	Name         string
	Link         string // location pointer: local path, temp path, or remote URL
	Format       string
	Duration     int // seconds
	SamplingRate int // Hz
	BitDepth     int // 0 means unknown
	Size         int64

	DOI         string `gorm:"column:doi"`
	ExternalID  string `gorm:"index"` // remote deposition identifier once assigned
	ExternalURL string
	IsValidLink bool // derived, set true only by a successful publish

	Status       FileStatus `gorm:"type:varchar(20);default:pending;index"`
	RepositoryID *uint
	Repository   *Repository `gorm:"foreignKey:RepositoryID"`

	CreatedByID *uint
	CreatedBy   *User `gorm:"foreignKey:CreatedByID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DepositionClaim serializes draft creation per session. The unique index on
// RecordingSessionID makes the first writer the only one allowed to create a
// remote draft; later writers reuse the claimed deposition id.
type DepositionClaim struct {
	ID                 uint   `gorm:"primaryKey"`
	RecordingSessionID uint   `gorm:"uniqueIndex:uq_session_deposition"`
	DepositionID       string // empty until the remote draft exists
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
