package models

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProtocolPostgreSQL    = "postgresql"
	ProtocolMySQL         = "mysql"
	ProtocolRedshift      = "redshift"
	ProtocolElasticsearch = "elasticsearch"
)

// ErrInvalidSourceKind is returned when a source is neither or both of database and API.
var ErrInvalidSourceKind = errors.New("data source must be exactly one of database or api")

// SupportedProtocols lists the protocols a database source may use.
var SupportedProtocols = []string{ProtocolPostgreSQL, ProtocolMySQL, ProtocolRedshift, ProtocolElasticsearch}

// DataSource is a user-registered database or API that the chat agent queries.
// Credentials never live here; they are stored in the secrets store under Identifier().
type DataSource struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"-" validate:"-"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,max=255"`
	Protocol  string         `gorm:"type:varchar(50);default:''" json:"protocol" validate:"omitempty,oneof=postgresql mysql redshift elasticsearch"`
	Host      string         `gorm:"type:varchar(255);default:''" json:"host" validate:"max=255"`
	Port      string         `gorm:"type:varchar(10);default:''" json:"port" validate:"omitempty,numeric,max=5"`
	DBName    string         `gorm:"column:db_name;type:varchar(255);default:''" json:"db_name" validate:"max=255"`
	Tables    string         `gorm:"type:varchar(255);default:''" json:"tables" validate:"max=255"`
	Schema    string         `gorm:"type:text" json:"schema"`
	SpecURL   string         `gorm:"type:varchar(512);default:''" json:"spec_url" validate:"omitempty,url,max=512"`
	Header    datatypes.JSON `json:"header,omitempty"`
	IsDB      bool           `gorm:"column:is_db;default:false;index" json:"is_db"`
	IsAPI     bool           `gorm:"column:is_api;default:false;index" json:"is_api"`
	Messages  []Message      `gorm:"foreignKey:DataSourceID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks struct tags plus the database/API exclusivity rule.
func (d *DataSource) Validate() error {
	if d.IsDB == d.IsAPI {
		return ErrInvalidSourceKind
	}
	if err := validator.New().Struct(d); err != nil {
		return err
	}
	if d.IsDB && (d.Protocol == "" || d.Host == "") {
		return errors.New("database sources need a protocol and host")
	}
	if d.IsAPI && d.SpecURL == "" {
		return errors.New("api sources need a spec url")
	}
	return nil
}

func (d *DataSource) BeforeSave(tx *gorm.DB) error {
	if d.IsDB == d.IsAPI {
		return ErrInvalidSourceKind
	}
	return nil
}

// Identifier names this source's secret, cached agent and crawler resources.
func (d *DataSource) Identifier() string {
	kind := d.Protocol
	if d.IsAPI {
		kind = "api"
	}
	return fmt.Sprintf("%d_%d_%s", d.UserID, d.ID, kind)
}

// TableList splits the comma separated table filter.
func (d *DataSource) TableList() []string {
	if strings.TrimSpace(d.Tables) == "" {
		return nil
	}
	parts := strings.Split(d.Tables, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (d *DataSource) hostPort() string {
	port := d.Port
	if port == "" {
		port = defaultPort(d.Protocol)
	}
	return net.JoinHostPort(d.Host, port)
}

func defaultPort(protocol string) string {
	switch protocol {
	case ProtocolPostgreSQL:
		return "5432"
	case ProtocolMySQL:
		return "3306"
	case ProtocolRedshift:
		return "5439"
	case ProtocolElasticsearch:
		return "9200"
	default:
		return ""
	}
}

// ConnectionString builds the driver connection string for the stored protocol.
func (d *DataSource) ConnectionString(username, password string) (string, error) {
	switch d.Protocol {
	case ProtocolPostgreSQL, ProtocolRedshift:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(username, password),
			Host:   d.hostPort(),
			Path:   "/" + d.DBName,
		}
		return u.String(), nil
	case ProtocolMySQL:
		cfg := mysql.NewConfig()
		cfg.User = username
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = d.hostPort()
		cfg.DBName = d.DBName
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case ProtocolElasticsearch:
		u := url.URL{
			Scheme: "https",
			User:   url.UserPassword(username, password),
			Host:   d.hostPort(),
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported protocol %q", d.Protocol)
	}
}

// JDBCURI is the credential-free URI handed to the catalog crawler.
func (d *DataSource) JDBCURI() string {
	return fmt.Sprintf("jdbc:%s://%s/%s", d.Protocol, d.hostPort(), d.DBName)
}
