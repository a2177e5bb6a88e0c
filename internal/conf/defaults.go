// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "mouseTube")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/mousetube.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("media.root", "media/")
	viper.SetDefault("media.temproot", "temp/")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "mousetube.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "mousetube")
	viper.SetDefault("output.mysql.database", "mousetube")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("publication.zenodo.enabled", false)
	viper.SetDefault("publication.zenodo.debug", false)
	viper.SetDefault("publication.zenodo.apiurl", "https://sandbox.zenodo.org/api")
	viper.SetDefault("publication.zenodo.accesstoken", "")
	viper.SetDefault("publication.zenodo.community", "mousetube")

	viper.SetDefault("publication.jobs.maxretries", 1)
	viper.SetDefault("publication.jobs.retrydelay", 10)
	viper.SetDefault("publication.jobs.maxqueuesize", 1000)
}
