package dashboard

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type DatabaseSourceForm struct {
	Title    string `form:"title" validate:"required,max=255"`
	Protocol string `form:"protocol" validate:"required,oneof=postgresql mysql redshift elasticsearch"`
	Host     string `form:"host" validate:"required,max=255"`
	Port     string `form:"port" validate:"omitempty,numeric,max=5"`
	DBName   string `form:"db_name" validate:"max=255"`
	Tables   string `form:"tables" validate:"max=255"`
	Username string `form:"username" validate:"required,max=255"`
	Password string `form:"password" validate:"required"`
}

func (f *DatabaseSourceForm) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Host = strings.TrimSpace(f.Host)
	return validate.Struct(f)
}

type APISourceForm struct {
	Title   string `form:"title" validate:"required,max=255"`
	SpecURL string `form:"spec_url" validate:"required,url,max=512"`
	Header  string `form:"header" validate:"omitempty,json"`
}

func (f *APISourceForm) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	return validate.Struct(f)
}

// HeaderJSON normalizes the header field to a JSON object of strings.
func (f *APISourceForm) HeaderJSON() ([]byte, error) {
	header := map[string]string{}
	if strings.TrimSpace(f.Header) != "" {
		if err := json.Unmarshal([]byte(f.Header), &header); err != nil {
			return nil, ErrInvalidHeader
		}
	}
	return json.Marshal(header)
}

type ChatForm struct {
	Model   string `form:"model" validate:"required,oneof=gpt-3 gpt-4 gemini"`
	Message string `form:"message" validate:"required,max=255"`
}

func (f *ChatForm) Validate() error {
	f.Message = strings.TrimSpace(f.Message)
	return validate.Struct(f)
}

type CrawlForm struct {
	TargetType     string `form:"target_type" validate:"required,oneof=s3 jdbc mongodb dynamodb delta iceberg hudi"`
	Path           string `form:"path" validate:"required,max=1024"`
	ConnectionName string `form:"connection_name" validate:"max=255"`
}

func (f *CrawlForm) Validate() error {
	return validate.Struct(f)
}

// FieldErrors flattens validator errors into a field -> tag map for 422 responses.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return out
}
