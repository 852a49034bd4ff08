package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/jgoulah/cpauscraper/internal/config"
	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

const (
	backfillPath   = "/api/appdaemon/backfill_state"
	statisticsPath = "/api/appdaemon/generate_statistics"
)

// Publisher handles publishing to Home Assistant
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
	http        *resty.Client
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.ImportEntityID == "" && haCfg.ExportEntityID == "" && haCfg.NetEntityID == "" {
			return nil, fmt.Errorf("at least one Home Assistant entity id is required when enabled")
		}
	}

	p := &Publisher{
		topicPrefix: mqttCfg.GetTopicPrefix(),
		haConfig:    haCfg,
		http: resty.New().
			SetBaseURL(strings.TrimRight(haCfg.URL, "/")).
			SetAuthToken(haCfg.Token).
			SetHeader("Content-Type", "application/json").
			SetTimeout(60 * time.Second),
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("cpauscraper-" + uuid.NewString())
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		p.client = mqtt.NewClient(opts)
		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
		logger.PublishLog.Infof("connected to MQTT broker %s", mqttCfg.Broker)
	}

	return p, nil
}

// HAPayload matches the Home Assistant backfill service call data
type HAPayload struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	LastUpdated string `json:"last_updated"`
}

// StatisticsResult is the AppDaemon statistics endpoint response
type StatisticsResult struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	TotalHours int `json:"total_hours"`
}

// Enabled reports whether any publishing target is configured
func (p *Publisher) Enabled() bool {
	return p.haConfig.Enabled || p.client != nil
}

// Publish sends a usage record to Home Assistant and, when connected, to MQTT
func (p *Publisher) Publish(ctx context.Context, rec models.UsageRecord) error {
	if !p.Enabled() {
		return fmt.Errorf("neither Home Assistant nor MQTT publishing is enabled in config")
	}

	if p.haConfig.Enabled {
		timestamp := rec.Date.Format(time.RFC3339)
		states := []struct {
			entity string
			value  float64
		}{
			{p.haConfig.ImportEntityID, rec.Import},
			{p.haConfig.ExportEntityID, rec.Export},
			{p.haConfig.NetEntityID, rec.Net},
		}
		for _, s := range states {
			if s.entity == "" {
				continue
			}
			payload := HAPayload{
				EntityID:    s.entity,
				State:       fmt.Sprintf("%.3f", s.value),
				LastChanged: timestamp,
				LastUpdated: timestamp,
			}
			if err := p.post(ctx, backfillPath, payload, nil); err != nil {
				return fmt.Errorf("backfilling %s: %w", s.entity, err)
			}
		}
	}

	if p.client != nil {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		topic := p.Topic(rec)
		token := p.client.Publish(topic, 1, false, body)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("publishing to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
	}

	logger.PublishLog.Debugf("published %s %s %s", rec.MeterNumber, rec.Interval, rec.DateString())
	return nil
}

// Topic returns the MQTT topic a record is published on
func (p *Publisher) Topic(rec models.UsageRecord) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, rec.MeterNumber, rec.Interval)
}

// GenerateStatistics asks AppDaemon to compile statistics from backfilled states
func (p *Publisher) GenerateStatistics(ctx context.Context, entityID string) (*StatisticsResult, error) {
	if !p.haConfig.Enabled {
		return nil, fmt.Errorf("Home Assistant is not enabled in config")
	}

	var result StatisticsResult
	if err := p.post(ctx, statisticsPath, map[string]string{"entity_id": entityID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *Publisher) post(ctx context.Context, path string, body, result any) error {
	req := p.http.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
