package http

import (
	"encoding/json"
	"net/http"

	"github.com/storesync/storesync/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type configJson struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	BaseURL          string `json:"base_url"`
	LogLevel         string `json:"log_level"`
	LogPath          string `json:"log_path"`
	LogMaxSize       int    `json:"log_max_size"`
	LogMaxBackups    int    `json:"log_max_backups"`
	HQEndpoint       string `json:"hq_endpoint"`
	HQServe          bool   `json:"hq_serve"`
	AutoSyncSchedule string `json:"auto_sync_schedule"`
	Version          string `json:"version"`
	Commit           string `json:"commit"`
	Date             string `json:"date"`
}

type configUpdateJson struct {
	LogLevel *string `json:"log_level,omitempty"`
	LogPath  *string `json:"log_path,omitempty"`
}

type configHandler struct {
	encoder encoder

	cfg    *config.AppConfig
	server Server
}

func newConfigHandler(encoder encoder, server Server, cfg *config.AppConfig) *configHandler {
	return &configHandler{
		encoder: encoder,
		cfg:     cfg,
		server:  server,
	}
}

func (h configHandler) Routes(r chi.Router) {
	r.Get("/", h.getConfig)
	r.Patch("/", h.updateConfig)
}

func (h configHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	conf := configJson{
		Host:             h.cfg.Config.Server.Host,
		Port:             h.cfg.Config.Server.Port,
		BaseURL:          h.cfg.Config.Server.BaseURL,
		LogLevel:         h.cfg.Config.Logging.Level,
		LogPath:          h.cfg.Config.Logging.Path,
		LogMaxSize:       h.cfg.Config.Logging.MaxFileSize,
		LogMaxBackups:    h.cfg.Config.Logging.MaxBackupCount,
		HQEndpoint:       h.cfg.Config.HQ.Endpoint,
		HQServe:          h.cfg.Config.HQ.Serve,
		AutoSyncSchedule: h.cfg.Config.Sync.AutoSyncSchedule,
		Version:          h.server.version,
		Commit:           h.server.commit,
		Date:             h.server.date,
	}

	render.JSON(w, r, conf)
}

func (h configHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var data configUpdateJson

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.Error(w, err)
		return
	}

	// changes apply in-memory only; config.toml is the durable source
	if data.LogLevel != nil {
		h.cfg.Config.Logging.Level = *data.LogLevel
	}

	if data.LogPath != nil {
		h.cfg.Config.Logging.Path = *data.LogPath
	}

	render.NoContent(w, r)
}
