package resolver

import (
	"strings"

	"github.com/miekg/dns"
)

// Record is a normalized DNS record as exposed to callers and integrations.
type Record struct {
	Type string `json:"type"`
	Data string `json:"data"`
	IP   string `json:"ip"`
	TTL  int    `json:"ttl"`
	Host string `json:"host"`
	Tag  string `json:"tag"`
}

// Answer is the raw value a backend returned for one resource record.
type Answer struct {
	Data string
	IP   string
	TTL  int
}

// recordTypes lists the lookups performed by GetRecords, in output order.
var recordTypes = []uint16{dns.TypeNS, dns.TypeCNAME, dns.TypeA}

func normalize(host string, qtype uint16, answers []Answer) []Record {
	records := make([]Record, 0, len(answers))
	for _, a := range answers {
		data := a.Data
		if data == "" {
			data = a.IP
		}
		records = append(records, Record{
			Type: dns.TypeToString[qtype],
			Data: strings.TrimRight(data, "."),
			IP:   a.IP,
			TTL:  a.TTL,
			Host: host,
		})
	}
	return records
}

// answersFromRR converts resource records of the requested type into answers.
func answersFromRR(qtype uint16, rrs []dns.RR) []Answer {
	var answers []Answer
	for _, rr := range rrs {
		hdr := rr.Header()
		if hdr.Rrtype != qtype {
			continue
		}
		ttl := int(hdr.Ttl)
		switch v := rr.(type) {
		case *dns.A:
			answers = append(answers, Answer{IP: v.A.String(), TTL: ttl})
		case *dns.CNAME:
			answers = append(answers, Answer{Data: v.Target, TTL: ttl})
		case *dns.NS:
			answers = append(answers, Answer{Data: v.Ns, TTL: ttl})
		}
	}
	return answers
}
