package config

import (
	"encoding/base64"
	"fmt"
)

type Options struct {
	ServerAddr     string
	DatabaseDSN    string
	Base64Secret   string
	AllowedOrigins []string
	RedisAddr      string
	AMQPURL        string
	AMQPExchange   string
	LogLevel       string
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	RedisAddr      string
	AMQPURL        string
	AMQPExchange   string
	LogLevel       string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.Base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(opts.Base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	exchange := opts.AMQPExchange
	if exchange == "" {
		exchange = "peyk.events"
	}

	return &Config{
		ServerAddr:     opts.ServerAddr,
		DatabaseDSN:    opts.DatabaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: opts.AllowedOrigins,
		RedisAddr:      opts.RedisAddr,
		AMQPURL:        opts.AMQPURL,
		AMQPExchange:   exchange,
		LogLevel:       opts.LogLevel,
	}, nil
}
