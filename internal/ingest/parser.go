package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"authguard/internal/model"
)

var (
	rePRI       = regexp.MustCompile(`^<\d{1,3}>`)
	reSyslogTS  = regexp.MustCompile(`^\s*([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+`)
	reISOTS     = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+\-Z]+)\s+`)
	reTagPrefix = regexp.MustCompile(`^\S+\s+(?:sshd|sudo|login|auth[a-z]*)(?:\[\d+\])?:\s+`)

	reFailedPassword = regexp.MustCompile(`Failed (?:password|publickey|keyboard-interactive(?:/pam)?) for (?:invalid user )?(\S+) from (\S+)(?: port \d+)?`)
	reAcceptedAuth   = regexp.MustCompile(`Accepted (?:password|publickey|keyboard-interactive(?:/pam)?) for (\S+) from (\S+)(?: port \d+)?`)
	reInvalidUser    = regexp.MustCompile(`Invalid user (\S+) from (\S+)`)
	reAuthFailure    = regexp.MustCompile(`authentication failure.*rhost=(\S+)(?:\s+user=(\S+))?`)
	reKV             = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns one raw line from any listener into a RawRecord. It
// understands sshd-style syslog auth messages, JSON event objects and
// key=value text. Lines that carry no authentication signal return
// (nil, nil) and are skipped silently; the normalizer decides whether a
// candidate record is complete.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) ParseLine(line string) (*model.RawRecord, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if rec, err := ParseJSONBytes([]byte(trim)); err == nil {
			rec.RawRef = rawRef(line)
			return rec, nil
		}
	}
	rec := parseSyslogLine(trim)
	if rec == nil {
		return nil, nil
	}
	rec.RawRef = rawRef(line)
	return rec, nil
}

// parseSyslogLine peels the PRI and timestamp header off a syslog line,
// then matches the message body against the known auth shapes.
func parseSyslogLine(line string) *model.RawRecord {
	rest := rePRI.ReplaceAllString(line, "")
	var ts string
	if m := reSyslogTS.FindStringSubmatch(rest); m != nil {
		ts = m[1]
		rest = rest[len(m[0]):]
	} else if m := reISOTS.FindStringSubmatch(rest); m != nil {
		ts = strings.TrimSpace(m[1])
		rest = rest[len(m[0]):]
	}
	rest = reTagPrefix.ReplaceAllString(rest, "")

	if m := reFailedPassword.FindStringSubmatch(rest); m != nil {
		return &model.RawRecord{Username: m[1], SourceIP: m[2], Protocol: "ssh", Outcome: "failure", Timestamp: ts}
	}
	if m := reAcceptedAuth.FindStringSubmatch(rest); m != nil {
		return &model.RawRecord{Username: m[1], SourceIP: m[2], Protocol: "ssh", Outcome: "success", Timestamp: ts}
	}
	if m := reInvalidUser.FindStringSubmatch(rest); m != nil {
		return &model.RawRecord{Username: m[1], SourceIP: m[2], Protocol: "ssh", Outcome: "failure", Timestamp: ts}
	}
	if m := reAuthFailure.FindStringSubmatch(rest); m != nil {
		return &model.RawRecord{Username: m[2], SourceIP: m[1], Protocol: "ssh", Outcome: "failure", Timestamp: ts}
	}

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(rest, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	if len(kv) == 0 {
		return nil
	}
	rec := &model.RawRecord{
		TenantHint: firstNonEmpty(kv, "tenant", "tenant_id", "org"),
		SourceIP:   firstNonEmpty(kv, "source_ip", "src", "src_ip", "ip", "rhost", "remote_addr"),
		Username:   firstNonEmpty(kv, "user", "username", "login", "account"),
		Protocol:   firstNonEmpty(kv, "protocol", "proto", "service"),
		Outcome:    firstNonEmpty(kv, "outcome", "result", "status"),
		Timestamp:  ts,
		Extras:     kv,
	}
	if rec.Timestamp == "" {
		rec.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	}
	if rec.SourceIP == "" || rec.Outcome == "" {
		return nil
	}
	return rec
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// rawRef is the stable audit reference for a raw line; duplicate
// deliveries of the same line produce the same ref.
func rawRef(line string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(line)))
	return hex.EncodeToString(h[:8])
}
