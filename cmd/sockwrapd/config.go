package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sockwrap/internal/wire"
)

type daemonConfig struct {
	ListenAddress string
	Port          int
	Backlog       int
	MetricsAddr   string
	Width         int
	Height        int
	LogText       string
	LogLevel      string
	Wire          wire.Config
}

type fileConfig struct {
	ListenAddress   string `toml:"listen_address"`
	Port            int    `toml:"port"`
	Backlog         int    `toml:"backlog"`
	MetricsAddr     string `toml:"metrics_addr"`
	Width           int    `toml:"width"`
	Height          int    `toml:"height"`
	LogText         string `toml:"log_text"`
	LogLevel        string `toml:"log_level"`
	Transport       string `toml:"transport"`
	ChunkSize       int    `toml:"chunk_size"`
	StringThreshold int    `toml:"string_threshold"`
	MaxFrameBytes   uint64 `toml:"max_frame_bytes"`
	ConnectTimeout  string `toml:"connect_timeout"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		ListenAddress: "0.0.0.0",
		Port:          8485,
		Backlog:       5,
		MetricsAddr:   "127.0.0.1:9485",
		Width:         64,
		Height:        48,
		LogText:       "sockwrapd: pattern source ready",
		Wire:          wire.DefaultConfig(),
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load sockwrapd config: %w", err)
	}

	if meta.IsDefined("listen_address") {
		cfg.ListenAddress = strings.TrimSpace(raw.ListenAddress)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("backlog") {
		cfg.Backlog = raw.Backlog
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("width") {
		cfg.Width = raw.Width
	}
	if meta.IsDefined("height") {
		cfg.Height = raw.Height
	}
	if meta.IsDefined("log_text") {
		cfg.LogText = raw.LogText
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("transport") {
		t, err := parseTransport(raw.Transport)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.Wire.Transport = t
	}
	if meta.IsDefined("chunk_size") {
		cfg.Wire.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("string_threshold") {
		cfg.Wire.StringThreshold = raw.StringThreshold
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Wire.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Wire.ConnectTimeout = d
	}

	if err := cfg.validate(); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}

func (c daemonConfig) validate() error {
	if err := wire.ValidateEndpoint(c.ListenAddress, c.Port, true); err != nil {
		return err
	}
	if c.Backlog < 0 {
		return fmt.Errorf("backlog must be >= 0, got %d", c.Backlog)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}

func parseTransport(raw string) (wire.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "tcp":
		return wire.TransportTCP, nil
	case "rfcomm":
		return wire.TransportRFCOMM, nil
	default:
		return wire.Transport{}, fmt.Errorf("unknown transport %q", raw)
	}
}
