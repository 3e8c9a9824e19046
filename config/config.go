// Package config holds every tunable the core's components are
// constructed with. There is no package-level singleton: a *Config is
// built once at startup (see spec.md §9's "global settings" note) and
// threaded through every constructor.
package config

import (
	"fmt"
	"time"
)

// ListenAny selects which IP families the network listener binds.
type ListenAny int

const (
	ListenIPv4 ListenAny = iota
	ListenIPv6
	ListenBoth
)

// Config captures every tunable named across spec.md §4 and §6. Zero
// value is not meaningful; use Default() to obtain a valid baseline.
type Config struct {
	// Chunk store & file mirror (§4.1)
	ChunkSize                   int64
	ScanPeriodUnwatchableDirs   time.Duration
	MinHashingDuration          time.Duration
	CheckReceivedDataIntegrity  bool

	// Search index (§4.2)
	MaxNumberOfSearchResultToSend int

	// Peer directory (§4.3)
	PeerTimeoutFactor  int
	PeerIMAlivePeriod  time.Duration

	// Connection pool (§4.4)
	MaxNumberIdleSocket int
	IdleSocketTimeout   time.Duration
	PendingSocketTimeout time.Duration
	GetHashesTimeout    time.Duration

	// Network listener (§4.5)
	MaxUDPDatagramSize       int
	UnicastBasePort          int
	MulticastPort            int
	MulticastTTL             int
	MulticastGroup           string
	ListenAddress            string
	ListenAny                ListenAny
	NumberOfHashesSentIMAlive int
	MaxIMAliveThroughput     int64 // bytes/sec
	SearchLifetime           time.Duration
	MaxNumberOfResultShown   int

	// Download manager (§4.6)
	NumberOfDownloader            int
	SwitchToAnotherPeerFactor     float64
	BlockDurationCorruptedData    time.Duration
	RestartDownloadsPeriodIfError time.Duration
	SaveQueuePeriod               time.Duration
	FileQueuePath                 string

	// Upload manager (§4.7)
	UploadMinNbThread    int
	UploadThreadLifetime time.Duration
	UploadLifetime       time.Duration

	// Remote control surface (§6, seam only)
	RemoteRefreshRate      time.Duration
	RemoteMaxNbConnection  int

	// Protocol
	ProtocolVersion uint32
}

// Default returns the baseline configuration every field falls back to
// when Sanitize rejects an out-of-range value.
func Default() *Config {
	return &Config{
		ChunkSize:                  2 << 20, // 2 MiB
		ScanPeriodUnwatchableDirs:  30 * time.Second,
		MinHashingDuration:         200 * time.Millisecond,
		CheckReceivedDataIntegrity: true,

		MaxNumberOfSearchResultToSend: 100,

		PeerTimeoutFactor: 3,
		PeerIMAlivePeriod: 10 * time.Second,

		MaxNumberIdleSocket:  5,
		IdleSocketTimeout:    30 * time.Second,
		PendingSocketTimeout: 10 * time.Second,
		GetHashesTimeout:     20 * time.Second,

		MaxUDPDatagramSize:        8192,
		UnicastBasePort:           59300,
		MulticastPort:             59301,
		MulticastTTL:              1,
		MulticastGroup:            "239.10.10.10",
		ListenAddress:             "",
		ListenAny:                 ListenBoth,
		NumberOfHashesSentIMAlive: 20,
		MaxIMAliveThroughput:      1 << 16,
		SearchLifetime:            5 * time.Second,
		MaxNumberOfResultShown:    200,

		NumberOfDownloader:            3,
		SwitchToAnotherPeerFactor:     1.5,
		BlockDurationCorruptedData:    10 * time.Minute,
		RestartDownloadsPeriodIfError: time.Minute,
		SaveQueuePeriod:               30 * time.Second,
		FileQueuePath:                 "FILE_QUEUE",

		UploadMinNbThread:    2,
		UploadThreadLifetime: time.Minute,
		UploadLifetime:       5 * time.Minute,

		RemoteRefreshRate:     time.Second,
		RemoteMaxNbConnection: 5,

		ProtocolVersion: 1,
	}
}

// Replacement records one field Sanitize reset to its default value.
type Replacement struct {
	Field string
	Bad   interface{}
	Used  interface{}
}

func (r Replacement) String() string {
	return fmt.Sprintf("%s: out-of-range value %v replaced with default %v", r.Field, r.Bad, r.Used)
}

// Sanitize replaces any out-of-range field with its Default()
// counterpart and returns the list of fields it replaced, so the
// caller can log a warning per spec.md §6.
func (c *Config) Sanitize() []Replacement {
	def := Default()
	var out []Replacement

	check := func(field string, bad bool, badVal, goodVal interface{}, apply func()) {
		if bad {
			out = append(out, Replacement{Field: field, Bad: badVal, Used: goodVal})
			apply()
		}
	}

	check("ChunkSize", c.ChunkSize <= 0, c.ChunkSize, def.ChunkSize, func() { c.ChunkSize = def.ChunkSize })
	check("MinHashingDuration", c.MinHashingDuration <= 0, c.MinHashingDuration, def.MinHashingDuration, func() { c.MinHashingDuration = def.MinHashingDuration })
	check("MaxNumberOfSearchResultToSend", c.MaxNumberOfSearchResultToSend <= 0, c.MaxNumberOfSearchResultToSend, def.MaxNumberOfSearchResultToSend, func() {
		c.MaxNumberOfSearchResultToSend = def.MaxNumberOfSearchResultToSend
	})
	check("PeerTimeoutFactor", c.PeerTimeoutFactor <= 0, c.PeerTimeoutFactor, def.PeerTimeoutFactor, func() { c.PeerTimeoutFactor = def.PeerTimeoutFactor })
	check("PeerIMAlivePeriod", c.PeerIMAlivePeriod <= 0, c.PeerIMAlivePeriod, def.PeerIMAlivePeriod, func() { c.PeerIMAlivePeriod = def.PeerIMAlivePeriod })
	check("MaxNumberIdleSocket", c.MaxNumberIdleSocket < 0, c.MaxNumberIdleSocket, def.MaxNumberIdleSocket, func() { c.MaxNumberIdleSocket = def.MaxNumberIdleSocket })
	check("IdleSocketTimeout", c.IdleSocketTimeout <= 0, c.IdleSocketTimeout, def.IdleSocketTimeout, func() { c.IdleSocketTimeout = def.IdleSocketTimeout })
	check("PendingSocketTimeout", c.PendingSocketTimeout <= 0, c.PendingSocketTimeout, def.PendingSocketTimeout, func() { c.PendingSocketTimeout = def.PendingSocketTimeout })
	check("GetHashesTimeout", c.GetHashesTimeout <= 0, c.GetHashesTimeout, def.GetHashesTimeout, func() { c.GetHashesTimeout = def.GetHashesTimeout })
	check("MaxUDPDatagramSize", c.MaxUDPDatagramSize <= 0, c.MaxUDPDatagramSize, def.MaxUDPDatagramSize, func() { c.MaxUDPDatagramSize = def.MaxUDPDatagramSize })
	check("UnicastBasePort", c.UnicastBasePort <= 0 || c.UnicastBasePort > 65535, c.UnicastBasePort, def.UnicastBasePort, func() { c.UnicastBasePort = def.UnicastBasePort })
	check("MulticastPort", c.MulticastPort <= 0 || c.MulticastPort > 65535, c.MulticastPort, def.MulticastPort, func() { c.MulticastPort = def.MulticastPort })
	check("MulticastTTL", c.MulticastTTL <= 0, c.MulticastTTL, def.MulticastTTL, func() { c.MulticastTTL = def.MulticastTTL })
	check("MulticastGroup", c.MulticastGroup == "", c.MulticastGroup, def.MulticastGroup, func() { c.MulticastGroup = def.MulticastGroup })
	check("NumberOfHashesSentIMAlive", c.NumberOfHashesSentIMAlive < 0, c.NumberOfHashesSentIMAlive, def.NumberOfHashesSentIMAlive, func() {
		c.NumberOfHashesSentIMAlive = def.NumberOfHashesSentIMAlive
	})
	check("MaxIMAliveThroughput", c.MaxIMAliveThroughput <= 0, c.MaxIMAliveThroughput, def.MaxIMAliveThroughput, func() { c.MaxIMAliveThroughput = def.MaxIMAliveThroughput })
	check("SearchLifetime", c.SearchLifetime <= 0, c.SearchLifetime, def.SearchLifetime, func() { c.SearchLifetime = def.SearchLifetime })
	check("MaxNumberOfResultShown", c.MaxNumberOfResultShown <= 0, c.MaxNumberOfResultShown, def.MaxNumberOfResultShown, func() {
		c.MaxNumberOfResultShown = def.MaxNumberOfResultShown
	})
	check("NumberOfDownloader", c.NumberOfDownloader <= 0, c.NumberOfDownloader, def.NumberOfDownloader, func() { c.NumberOfDownloader = def.NumberOfDownloader })
	check("SwitchToAnotherPeerFactor", c.SwitchToAnotherPeerFactor <= 0, c.SwitchToAnotherPeerFactor, def.SwitchToAnotherPeerFactor, func() {
		c.SwitchToAnotherPeerFactor = def.SwitchToAnotherPeerFactor
	})
	check("BlockDurationCorruptedData", c.BlockDurationCorruptedData <= 0, c.BlockDurationCorruptedData, def.BlockDurationCorruptedData, func() {
		c.BlockDurationCorruptedData = def.BlockDurationCorruptedData
	})
	check("RestartDownloadsPeriodIfError", c.RestartDownloadsPeriodIfError <= 0, c.RestartDownloadsPeriodIfError, def.RestartDownloadsPeriodIfError, func() {
		c.RestartDownloadsPeriodIfError = def.RestartDownloadsPeriodIfError
	})
	check("SaveQueuePeriod", c.SaveQueuePeriod <= 0, c.SaveQueuePeriod, def.SaveQueuePeriod, func() { c.SaveQueuePeriod = def.SaveQueuePeriod })
	check("FileQueuePath", c.FileQueuePath == "", c.FileQueuePath, def.FileQueuePath, func() { c.FileQueuePath = def.FileQueuePath })
	check("UploadMinNbThread", c.UploadMinNbThread <= 0, c.UploadMinNbThread, def.UploadMinNbThread, func() { c.UploadMinNbThread = def.UploadMinNbThread })
	check("UploadThreadLifetime", c.UploadThreadLifetime <= 0, c.UploadThreadLifetime, def.UploadThreadLifetime, func() { c.UploadThreadLifetime = def.UploadThreadLifetime })
	check("UploadLifetime", c.UploadLifetime <= 0, c.UploadLifetime, def.UploadLifetime, func() { c.UploadLifetime = def.UploadLifetime })
	check("RemoteRefreshRate", c.RemoteRefreshRate <= 0, c.RemoteRefreshRate, def.RemoteRefreshRate, func() { c.RemoteRefreshRate = def.RemoteRefreshRate })
	check("RemoteMaxNbConnection", c.RemoteMaxNbConnection <= 0, c.RemoteMaxNbConnection, def.RemoteMaxNbConnection, func() {
		c.RemoteMaxNbConnection = def.RemoteMaxNbConnection
	})
	check("ProtocolVersion", c.ProtocolVersion == 0, c.ProtocolVersion, def.ProtocolVersion, func() { c.ProtocolVersion = def.ProtocolVersion })

	return out
}
