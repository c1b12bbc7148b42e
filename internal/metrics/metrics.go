package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RuleEvaluations counts condition evaluations per device.
	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_rule_evaluations_total",
		Help: "Total number of rule condition evaluations",
	}, []string{"device_id"})

	// GateBlocks counts rejected rule firings by reason.
	GateBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_gate_blocks_total",
		Help: "Total number of rule firings rejected by the gate",
	}, []string{"reason"})

	// CommandsEnqueued counts commands created per device.
	CommandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_commands_enqueued_total",
		Help: "Total number of relay commands enqueued",
	}, []string{"device_id"})

	// CommandsReported counts device-reported command outcomes.
	CommandsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_commands_reported_total",
		Help: "Total number of command status reports from devices",
	}, []string{"status"})

	// DeviceContacts counts liveness-refreshing contacts per device.
	DeviceContacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_device_contacts_total",
		Help: "Total number of device contacts (polls and telemetry)",
	}, []string{"device_id"})

	// AlertsRaised counts alerts by category.
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrowave_alerts_raised_total",
		Help: "Total number of system alerts raised",
	}, []string{"category"})
)
