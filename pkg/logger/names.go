package logger

const (
	Main     = "main"
	Gate     = "gate"
	Patcher  = "patcher"
	Netconf  = "netconf"
	Service  = "svc"
	Resolver = "resolver"
	Proc     = "proc"
	Channel  = "channel"
	Metrics  = "metrics"
)
