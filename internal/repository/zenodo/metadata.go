// metadata.go assembles the descriptive metadata document sent to Zenodo.
package zenodo

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/mousetube/mousetube-go/internal/datastore"
)

const defaultTitle = "Untitled session"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore so the stored name is safe in remote URLs.
func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// creator is one entry of the deposition's creators list.
type creator struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// buildMetadata produces the Zenodo metadata payload for a session. The
// description is a plain-text document with labeled blocks separated by <br>
// tags; creators come from the first file's owner.
func buildMetadata(session *datastore.RecordingSession, files []datastore.File, community string, profile *datastore.UserProfile) map[string]any {
	title := strings.TrimSpace(session.Name)
	if title == "" {
		title = defaultTitle
	}

	metadata := map[string]any{
		"title":       title,
		"upload_type": "dataset",
		"description": buildDescription(session, files),
		"communities": []map[string]string{{"identifier": community}},
	}

	if creators := buildCreators(files, profile); len(creators) > 0 {
		metadata["creators"] = creators
	}
	return metadata
}

// buildDescription renders the session, protocol, subject and file details as
// labeled plain-text blocks.
func buildDescription(session *datastore.RecordingSession, files []datastore.File) string {
	var blocks []string

	add := func(label, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			blocks = append(blocks, fmt.Sprintf("%s: %s", label, value))
		}
	}

	add("Session", session.Name)
	add("Date", session.Date)
	if session.Duration > 0 {
		add("Duration", fmt.Sprintf("%d s", session.Duration))
	}
	add("Description", session.Description)

	if session.Protocol != nil {
		add("Protocol", session.Protocol.Name)
		add("Protocol description", session.Protocol.Description)
	}
	if session.Laboratory != nil {
		add("Laboratory", session.Laboratory.Name)
	}

	for i := range session.AnimalProfiles {
		blocks = append(blocks, describeAnimal(&session.AnimalProfiles[i]))
	}

	for i := range files {
		file := &files[i]
		name := strings.TrimSpace(file.Name)
		if name == "" {
			name = path.Base(file.Link)
		}
		add("File", name)
		add("Format", file.Format)
		if file.Duration > 0 {
			add("Duration", fmt.Sprintf("%d s", file.Duration))
		}
		if file.SamplingRate > 0 {
			add("Sampling rate", fmt.Sprintf("%d Hz", file.SamplingRate))
		}
		if file.BitDepth > 0 {
			add("Bit depth", fmt.Sprintf("%d", file.BitDepth))
		}
	}

	if len(blocks) == 0 {
		return "Bioacoustic recording session."
	}
	return strings.Join(blocks, "<br>")
}

func describeAnimal(profile *datastore.AnimalProfile) string {
	parts := []string{profile.Name}
	if profile.Strain != nil {
		strain := profile.Strain.Name
		if profile.Strain.Species != nil {
			strain = fmt.Sprintf("%s (%s)", strain, profile.Strain.Species.Name)
		}
		parts = append(parts, strain)
	}
	if profile.Sex != "" {
		parts = append(parts, profile.Sex)
	}
	if profile.Genotype != "" {
		parts = append(parts, profile.Genotype)
	}
	if profile.Treatment != "" {
		parts = append(parts, profile.Treatment)
	}
	return "Animal: " + strings.Join(parts, ", ")
}

// buildCreators derives the creators list from the first file's owner.
// Family/given name format, laboratory-derived affiliation, ORCID if present.
func buildCreators(files []datastore.File, profile *datastore.UserProfile) []creator {
	var owner *datastore.User
	for i := range files {
		if files[i].CreatedBy != nil {
			owner = files[i].CreatedBy
			break
		}
	}
	if owner == nil {
		return nil
	}

	name := strings.TrimSpace(owner.LastName)
	if given := strings.TrimSpace(owner.FirstName); given != "" {
		if name != "" {
			name = name + ", " + given
		} else {
			name = given
		}
	}
	if name == "" {
		name = owner.Username
	}

	c := creator{Name: name}
	if profile != nil {
		if profile.Laboratory != nil {
			c.Affiliation = profile.Laboratory.Institution
			if c.Affiliation == "" {
				c.Affiliation = profile.Laboratory.Name
			}
		} else if profile.Institution != "" {
			c.Affiliation = profile.Institution
		}
		c.ORCID = profile.ORCID
	}
	return []creator{c}
}
