package ingest

import "testing"

func TestParseSSHFailedPassword(t *testing.T) {
	p := NewParser()
	line := "<38>Feb 23 12:34:56 bastion sshd[2412]: Failed password for invalid user admin from 203.0.113.7 port 52411 ssh2"
	rec, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if rec == nil {
		t.Fatalf("auth line skipped")
	}
	if rec.Username != "admin" {
		t.Fatalf("username: %q", rec.Username)
	}
	if rec.SourceIP != "203.0.113.7" {
		t.Fatalf("source ip: %q", rec.SourceIP)
	}
	if rec.Outcome != "failure" {
		t.Fatalf("outcome: %q", rec.Outcome)
	}
	if rec.Timestamp != "Feb 23 12:34:56" {
		t.Fatalf("timestamp: %q", rec.Timestamp)
	}
	if rec.RawRef == "" {
		t.Fatalf("raw ref missing")
	}
}

func TestParseSSHAccepted(t *testing.T) {
	p := NewParser()
	rec, err := p.ParseLine("Feb 23 12:35:02 bastion sshd[2412]: Accepted publickey for deploy from 198.51.100.4 port 40022 ssh2")
	if err != nil || rec == nil {
		t.Fatalf("parse: rec=%v err=%v", rec, err)
	}
	if rec.Outcome != "success" || rec.Username != "deploy" {
		t.Fatalf("got outcome=%q user=%q", rec.Outcome, rec.Username)
	}
}

func TestParsePAMAuthFailure(t *testing.T) {
	p := NewParser()
	rec, err := p.ParseLine("Feb 23 12:36:10 web01 sshd[991]: pam_unix(sshd:auth): authentication failure; logname= uid=0 euid=0 tty=ssh ruser= rhost=203.0.113.9 user=root")
	if err != nil || rec == nil {
		t.Fatalf("parse: rec=%v err=%v", rec, err)
	}
	if rec.SourceIP != "203.0.113.9" {
		t.Fatalf("rhost not extracted: %q", rec.SourceIP)
	}
	if rec.Username != "root" {
		t.Fatalf("user not extracted: %q", rec.Username)
	}
	if rec.Outcome != "failure" {
		t.Fatalf("outcome: %q", rec.Outcome)
	}
}

func TestParseJSONLine(t *testing.T) {
	p := NewParser()
	line := `{"tenant":"demo-org","source_ip":"192.168.1.100","username":"testuser","outcome":"failure","protocol":"ssh","timestamp":"2026-02-23T12:00:00Z"}`
	rec, err := p.ParseLine(line)
	if err != nil || rec == nil {
		t.Fatalf("parse: rec=%v err=%v", rec, err)
	}
	if rec.TenantHint != "demo-org" {
		t.Fatalf("tenant hint: %q", rec.TenantHint)
	}
	if rec.SourceIP != "192.168.1.100" || rec.Username != "testuser" {
		t.Fatalf("identity fields: ip=%q user=%q", rec.SourceIP, rec.Username)
	}
	if rec.Timestamp != "2026-02-23T12:00:00Z" {
		t.Fatalf("timestamp: %q", rec.Timestamp)
	}
}

func TestParseKeyValueLine(t *testing.T) {
	p := NewParser()
	rec, err := p.ParseLine("2026-02-23T12:00:00Z vpnd: service=vpn src_ip=10.20.0.5 user=alice result=failure")
	if err != nil || rec == nil {
		t.Fatalf("parse: rec=%v err=%v", rec, err)
	}
	if rec.SourceIP != "10.20.0.5" || rec.Username != "alice" {
		t.Fatalf("identity fields: ip=%q user=%q", rec.SourceIP, rec.Username)
	}
	if rec.Outcome != "failure" || rec.Protocol != "vpn" {
		t.Fatalf("outcome=%q protocol=%q", rec.Outcome, rec.Protocol)
	}
}

func TestParseSkipsNonAuthLines(t *testing.T) {
	p := NewParser()
	for _, line := range []string{
		"",
		"   ",
		"Feb 23 12:00:00 host kernel: eth0 link up",
		"just some words",
	} {
		rec, err := p.ParseLine(line)
		if err != nil {
			t.Fatalf("line %q: unexpected error %v", line, err)
		}
		if rec != nil {
			t.Fatalf("line %q: expected skip, got %+v", line, rec)
		}
	}
}

func TestDuplicateLinesShareRawRef(t *testing.T) {
	p := NewParser()
	line := "Feb 23 12:34:56 bastion sshd[2412]: Failed password for root from 203.0.113.7 port 52411 ssh2"
	a, _ := p.ParseLine(line)
	b, _ := p.ParseLine("  " + line + "\n")
	if a == nil || b == nil {
		t.Fatalf("parse failed")
	}
	if a.RawRef != b.RawRef {
		t.Fatalf("refs differ for identical payload: %s vs %s", a.RawRef, b.RawRef)
	}
}
