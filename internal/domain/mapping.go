package domain

import "time"

// Stage is a position in the mapped domain verification pipeline.
type Stage string

const (
	StageCheckingDNS    Stage = "checking-dns"
	StageCheckingSSL    Stage = "checking-ssl-cert"
	StageDone           Stage = "done"
	StageDoneWithoutSSL Stage = "done-without-ssl"
	StageFailed         Stage = "failed"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageCheckingDNS, StageCheckingSSL, StageDone, StageDoneWithoutSSL, StageFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic checks run from s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageDoneWithoutSSL || s == StageFailed
}

// Label returns a human readable stage name.
func (s Stage) Label() string {
	switch s {
	case StageCheckingDNS:
		return "Checking DNS"
	case StageCheckingSSL:
		return "Checking SSL"
	case StageDone:
		return "Ready"
	case StageDoneWithoutSSL:
		return "Ready (without SSL)"
	case StageFailed:
		return "Failed"
	}
	return string(s)
}

// Domain is a custom hostname mapped onto a hosted site.
type Domain struct {
	ID            string    `json:"id"`
	SiteID        string    `json:"site_id"`
	Domain        string    `json:"domain"`
	Stage         Stage     `json:"stage"`
	Secure        bool      `json:"secure"`
	PrimaryDomain bool      `json:"primary_domain"`
	Active        bool      `json:"active"`
	Cycle         int       `json:"cycle"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LogChannel returns the log channel name used for this domain.
func (d Domain) LogChannel() string {
	return DomainLogChannel(d.Domain)
}

// DomainLogChannel returns the log channel for a hostname.
func DomainLogChannel(host string) string {
	return "domain-" + host
}

// StageUpdate describes a compare-and-swap stage transition. It applies only
// while the stored stage and cycle equal From and Cycle.
type StageUpdate struct {
	DomainID  string
	From      Stage
	To        Stage
	Cycle     int
	NextCycle bool
	Secure    *bool
}

// DomainFilter narrows domain listings.
type DomainFilter struct {
	SiteID string
	Stage  Stage
	Limit  int
	Offset int
}
