package shortener

import (
	"net/url"
	"strings"
)

// ShareXConfig はShareXのカスタムアップローダー設定（.sxcu）。
type ShareXConfig struct {
	Version         string            `json:"Version"`
	Name            string            `json:"Name"`
	DestinationType string            `json:"DestinationType"`
	RequestMethod   string            `json:"RequestMethod"`
	RequestURL      string            `json:"RequestURL"`
	Headers         map[string]string `json:"Headers"`
	Body            string            `json:"Body"`
	Data            string            `json:"Data"`
	URL             string            `json:"URL"`
	ErrorMessage    string            `json:"ErrorMessage"`
}

// ShareX はapiKeyで短縮URLを作成するShareX設定を返す。
func (s *Service) ShareX(apiKey string) ShareXConfig {
	base := strings.TrimRight(s.config.BaseURL, "/")
	return ShareXConfig{
		Version:         "13.4.0",
		Name:            s.ShareXFilename(),
		DestinationType: "URLShortener",
		RequestMethod:   "POST",
		RequestURL:      base + "/api/urls",
		Headers:         map[string]string{"x-api-key": apiKey},
		Body:            "JSON",
		Data:            `{"destination":"$input$"}`,
		URL:             base + "/$json:alias$",
		ErrorMessage:    "$json:message$",
	}
}

// ShareXFilename はダウンロード時のファイル名を返す。
func (s *Service) ShareXFilename() string {
	host := "linknote"
	if u, err := url.Parse(s.config.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return host + ".sxcu"
}
