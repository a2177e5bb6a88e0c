// conf/validate.go settings validation
package conf

import (
	"fmt"

	"github.com/mousetube/mousetube-go/internal/errors"
)

// ValidateSettings checks the loaded settings for configuration errors that
// must stop startup. A missing Zenodo access token with publication enabled is
// fatal here rather than surfacing later as a failed job.
func ValidateSettings(settings *Settings) error {
	if err := validateMediaSettings(&settings.Media); err != nil {
		return err
	}
	if err := validateOutputSettings(&settings.Output); err != nil {
		return err
	}
	return validatePublicationSettings(&settings.Publication)
}

func validateMediaSettings(media *MediaConfig) error {
	if media.Root == "" {
		return errors.Newf("media root is not configured").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if media.TempRoot == "" {
		return errors.Newf("media temp root is not configured").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateOutputSettings(output *OutputConfig) error {
	if !output.SQLite.Enabled && !output.MySQL.Enabled {
		return errors.Newf("no datastore enabled, enable either sqlite or mysql output").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if output.SQLite.Enabled && output.SQLite.Path == "" {
		return errors.Newf("sqlite output enabled but path is empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if output.MySQL.Enabled {
		if output.MySQL.Username == "" || output.MySQL.Database == "" || output.MySQL.Host == "" {
			return errors.Newf("mysql output enabled but connection settings are incomplete").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return nil
}

func validatePublicationSettings(pub *PublicationConfig) error {
	if pub.Zenodo.Enabled {
		if pub.Zenodo.AccessToken == "" {
			return errors.Newf("Zenodo access token not configured").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("hint", "set publication.zenodo.accesstoken or MOUSETUBE_PUBLICATION_ZENODO_ACCESSTOKEN").
				Build()
		}
		if pub.Zenodo.APIURL == "" {
			return errors.Newf("Zenodo API URL not configured").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	if pub.Jobs.MaxRetries < 0 {
		return fmt.Errorf("publication.jobs.maxretries must not be negative, got %d", pub.Jobs.MaxRetries)
	}
	if pub.Jobs.MaxQueueSize <= 0 {
		return fmt.Errorf("publication.jobs.maxqueuesize must be positive, got %d", pub.Jobs.MaxQueueSize)
	}
	return nil
}
