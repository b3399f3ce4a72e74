package cmd

import (
	"fmt"
	"log"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "apirun",
	Short: "apirun executes templated HTTP requests",
	Long: `apirun resolves {{variable}} templates against environment and collection
scopes, runs pre-request and test scripts, and sends the resulting HTTP
requests. Results are reported per request with script test outcomes,
suitable for local use and CI pipelines.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var (
	cfgFilePath string
)

const (
	ConfigFileName      = ".apirun"
	ConfigFileExtension = ".yaml"
)

func init() {
	homePath, err := homedir.Dir()
	if err != nil {
		log.Fatal(err)
	}

	cfgFilePath = fmt.Sprintf("%s/%s%s", homePath, ConfigFileName, ConfigFileExtension)

	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", cfgFilePath, "config file (default is $HOME/.apirun.yaml)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error executing root command: %s", err)
	}
}

func initConfig() {
	viper.SetConfigType("yaml")
	home, err := homedir.Dir()
	if err != nil {
		log.Fatalf("Error finding home directory: %s", err)
	}

	if cfgFilePath != fmt.Sprintf("%s/%s%s", home, ConfigFileName, ConfigFileExtension) {
		viper.SetConfigFile(cfgFilePath)
	} else {
		viper.AddConfigPath(home)
		viper.SetConfigName(ConfigFileName)
	}
	viper.SetEnvPrefix("apirun")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("error reading config file: %s\n", err)
		}
	}
}
