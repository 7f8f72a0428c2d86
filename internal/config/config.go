// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`

	Conversation Conversation `yaml:"conversation"`
	Approval     Approval     `yaml:"approval"`
	Catalog      Catalog      `yaml:"catalog"`
	Fulfillment  Fulfillment  `yaml:"fulfillment"`
	Transport    Transport    `yaml:"transport"`
	Webhook      Webhook      `yaml:"webhook"`
	Admin        Admin        `yaml:"admin"`
	Housekeeper  Housekeeper  `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode" default:"disable"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"intake-bot"`
}

// Conversation tunes the dialogue engine.
type Conversation struct {
	SessionTTL     time.Duration `yaml:"sessionTTL" default:"5m"`
	SweepInterval  time.Duration `yaml:"sweepInterval" default:"60s"`
	VocabularyFile string        `yaml:"vocabularyFile"`
}

// Approval carries the fallback policy used until an administrator stores
// one through the admin API.
type Approval struct {
	DefaultPolicy string `yaml:"defaultPolicy" default:"manual"`
}

type CatalogService struct {
	BaseURL string              `yaml:"baseURL"`
	APIKey  commoncfg.SourceRef `yaml:"apiKey"`
}

type Catalog struct {
	Movies CatalogService `yaml:"movies"`
	Series CatalogService `yaml:"series"`
}

type Fulfillment struct {
	BaseURL string              `yaml:"baseURL"`
	APIKey  commoncfg.SourceRef `yaml:"apiKey"`
}

// Transport configures the outbound push channel towards the chat relay.
type Transport struct {
	PushURL string              `yaml:"pushURL"`
	Token   commoncfg.SourceRef `yaml:"token"`
}

// Webhook guards the inbound message endpoint and provides the salt used to
// pseudonymise sender identities before they reach storage.
type Webhook struct {
	Token          commoncfg.SourceRef `yaml:"token"`
	SenderHashSalt commoncfg.SourceRef `yaml:"senderHashSalt"`
}

type Admin struct {
	TokenSecret commoncfg.SourceRef `yaml:"tokenSecret"`
	TokenTTL    time.Duration       `yaml:"tokenTTL" default:"12h"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"60s"`
}
