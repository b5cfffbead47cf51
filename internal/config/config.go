package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigFileName = "release.config.json" // Looked up in the project directory
	envPrefix             = "EXT_RELEASE"         // e.g. EXT_RELEASE_APIKEY, EXT_RELEASE_ARCHIVEDIR

	keyAPIKey            = "apiKey"
	keyAPISecret         = "apiSecret"
	keyManifest          = "manifest"
	keyExtensionManifest = "extensionManifest"
	keyBuildCommand      = "buildCommand"
	keySignCommand       = "signCommand"
	keyCredentialsInArgs = "credentialsInArgs"
	keyDistDir           = "distDir"
	keyArchiveDir        = "archiveDir"
	keySourceEntries     = "sourceEntries"
	keyArchiveExclude    = "archiveExclude"
	keyRemote            = "remote"
	keyBranch            = "branch"
	keyStoreURLs         = "storeURLs"
)

// Default store console URLs opened once a release completes.
var DefaultStoreURLs = []string{
	"https://addons.mozilla.org/en-US/developers/addons",
	"https://chrome.google.com/webstore/devconsole",
}

// DefaultSourceEntries are the project paths packed into the source archive.
var DefaultSourceEntries = []string{
	"src",
	"package.json",
	"package-lock.json",
	"README.md",
	"manifest.json",
	"webpack.config.js",
}

// DefaultArchiveExclude are glob patterns left out of both archives.
var DefaultArchiveExclude = []string{".DS_Store", "Thumbs.db"}

// Credentials are the addon store API credentials.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Config is the resolved release configuration. All paths are absolute.
type Config struct {
	ProjectDir  string
	ConfigFile  string // Path of the config file that was looked up
	ConfigFound bool   // False when the config file does not exist

	Credentials       Credentials
	Manifest          string   // Primary project manifest (package.json)
	ExtensionManifest string   // Extension manifest (manifest.json)
	BuildCommand      []string // Command producing the production bundle in DistDir
	SignCommand       []string // Command signing and submitting the bundle
	CredentialsInArgs bool     // Pass credentials as --api-key/--api-secret instead of env
	DistDir           string
	ArchiveDir        string
	SourceEntries     []string // Relative to ProjectDir
	ArchiveExclude    []string // Glob patterns, see archive.Spec
	Remote            string
	Branch            string
	StoreURLs         []string
}

// Load resolves the configuration for projectDir. Values come from, in order
// of precedence: EXT_RELEASE_* environment variables, the config file
// (configFile, or release.config.json in projectDir), and defaults.
// A missing config file is not an error; a malformed one is.
func Load(projectDir, configFile string) (*Config, error) {
	absProject, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory %s: %w", projectDir, err)
	}
	cfg := &Config{ProjectDir: absProject}

	v := viper.New()
	v.SetDefault(keyManifest, "package.json")
	v.SetDefault(keyExtensionManifest, filepath.Join("src", "manifest.json"))
	v.SetDefault(keyBuildCommand, []string{"npm", "run", "build"})
	v.SetDefault(keySignCommand, []string{"web-ext", "sign", "--channel=listed"})
	v.SetDefault(keyCredentialsInArgs, false)
	v.SetDefault(keyDistDir, "dist")
	v.SetDefault(keyArchiveDir, defaultArchiveDir(absProject))
	v.SetDefault(keySourceEntries, DefaultSourceEntries)
	v.SetDefault(keyArchiveExclude, DefaultArchiveExclude)
	v.SetDefault(keyRemote, "origin")
	v.SetDefault(keyBranch, "master")
	v.SetDefault(keyStoreURLs, DefaultStoreURLs)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = filepath.Join(absProject, DefaultConfigFileName)
	}
	cfg.ConfigFile = resolve(absProject, configFile)

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		v.SetConfigFile(cfg.ConfigFile)
		if filepath.Ext(cfg.ConfigFile) == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfg.ConfigFile, err)
		}
		cfg.ConfigFound = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", cfg.ConfigFile, err)
	}

	cfg.Credentials = Credentials{
		APIKey:    v.GetString(keyAPIKey),
		APISecret: v.GetString(keyAPISecret),
	}
	cfg.Manifest = resolve(absProject, v.GetString(keyManifest))
	cfg.ExtensionManifest = resolve(absProject, v.GetString(keyExtensionManifest))
	cfg.BuildCommand = v.GetStringSlice(keyBuildCommand)
	cfg.SignCommand = v.GetStringSlice(keySignCommand)
	cfg.CredentialsInArgs = v.GetBool(keyCredentialsInArgs)
	cfg.DistDir = resolve(absProject, v.GetString(keyDistDir))
	cfg.ArchiveDir = resolve(absProject, v.GetString(keyArchiveDir))
	cfg.SourceEntries = v.GetStringSlice(keySourceEntries)
	cfg.ArchiveExclude = v.GetStringSlice(keyArchiveExclude)
	cfg.Remote = v.GetString(keyRemote)
	cfg.Branch = v.GetString(keyBranch)
	cfg.StoreURLs = v.GetStringSlice(keyStoreURLs)

	if len(cfg.BuildCommand) == 0 {
		return nil, fmt.Errorf("%s must not be empty", keyBuildCommand)
	}
	if len(cfg.SignCommand) == 0 {
		return nil, fmt.Errorf("%s must not be empty", keySignCommand)
	}
	return cfg, nil
}

// Manifests returns both manifest paths, primary first.
func (c *Config) Manifests() []string {
	return []string{c.Manifest, c.ExtensionManifest}
}

// defaultArchiveDir is the user's desktop, or the project directory when the
// home directory cannot be determined.
func defaultArchiveDir(projectDir string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return projectDir
	}
	return filepath.Join(home, "Desktop")
}

// resolve expands a leading ~ and makes p absolute relative to base.
func resolve(base, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
