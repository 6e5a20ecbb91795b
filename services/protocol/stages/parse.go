// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

// The interview collects free text. These parsers are deliberately tolerant:
// they extract what they can and leave gaps for the stage gate to flag,
// rather than rejecting an answer outright.

// parseList splits a free-text enumeration on newlines, semicolons and
// commas, trimming blanks and leading list markers.
func parseList(text string) []string {
	var out []string
	for _, chunk := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';' || r == ','
	}) {
		item := strings.TrimSpace(chunk)
		item = strings.TrimLeft(item, "-*• \t")
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLines splits on newlines only, for answers where commas are part of
// the per-line payload.
func parseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseKV extracts key=value pairs from a line where values may contain
// spaces. Each value runs from its key's "=" to the start of the next known
// key. Keys are matched at word boundaries only.
func parseKV(line string, keys []string) map[string]string {
	type hit struct {
		key    string
		start  int // index of the key token
		vstart int // index just past "="
	}
	var hits []hit
	for _, k := range keys {
		token := k + "="
		idx := 0
		for {
			pos := strings.Index(line[idx:], token)
			if pos < 0 {
				break
			}
			abs := idx + pos
			// word boundary: start of line or non-alphanumeric before
			if abs == 0 || !isWordByte(line[abs-1]) {
				hits = append(hits, hit{key: k, start: abs, vstart: abs + len(token)})
				break
			}
			idx = abs + len(token)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	out := make(map[string]string, len(hits))
	for i, h := range hits {
		end := len(line)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		out[h.key] = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[h.vstart:end]), ",;"))
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// parseScore parses an integer score, returning 0 when the text is not a
// number.
func parseScore(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0
	}
	return n
}

// parseArchetype normalizes a free-text task type to a known archetype, or
// "" when unrecognized.
func parseArchetype(text string) datatypes.TaskArchetype {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, a := range datatypes.ValidArchetypes {
		if strings.Contains(t, string(a)) {
			return a
		}
	}
	return ""
}

// parseImpact normalizes a free-text stakes description to an impact level.
func parseImpact(text string) datatypes.ImpactLevel {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(t, "high"):
		return datatypes.ImpactHigh
	case strings.Contains(t, "medium") || strings.Contains(t, "moderate"):
		return datatypes.ImpactMedium
	case strings.Contains(t, "low"):
		return datatypes.ImpactLow
	default:
		return ""
	}
}

// parseAccessLevel normalizes an access description to one of the four
// levels, or "" when unrecognized.
func parseAccessLevel(text string) datatypes.AccessLevel {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, l := range []datatypes.AccessLevel{
		datatypes.AccessConfidential,
		datatypes.AccessRestricted,
		datatypes.AccessInternal,
		datatypes.AccessPublic,
	} {
		if strings.Contains(t, string(l)) {
			return l
		}
	}
	return ""
}

// parsePrinciple normalizes a free-text principle name, or "" when
// unrecognized.
func parsePrinciple(text string) datatypes.EthicsPrinciple {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range datatypes.AllPrinciples {
		if strings.Contains(t, string(p)) {
			return p
		}
	}
	return ""
}

// parseIOFields parses declared inputs or outputs. Each comma-separated item
// is "name:kind"; a bare name gets an empty kind.
func parseIOFields(text string) []datatypes.IOField {
	var out []datatypes.IOField
	for _, item := range parseList(text) {
		name, kind, found := strings.Cut(item, ":")
		f := datatypes.IOField{Name: strings.TrimSpace(name)}
		if found {
			f.Kind = parseIOKind(kind)
		}
		if f.Name != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseIOKind(text string) datatypes.IOKind {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, k := range []datatypes.IOKind{
		datatypes.IOCategorical,
		datatypes.IOContinuous,
		datatypes.IOText,
		datatypes.IOImage,
		datatypes.IOTimeseries,
	} {
		if strings.Contains(t, string(k)) {
			return k
		}
	}
	return ""
}

// parseMitigations parses "strategy:effectiveness" pairs separated by
// commas, e.g. "bias audit:0.3,human review:0.25". A pair without a valid
// effectiveness gets 0.
func parseMitigations(text string) []datatypes.Mitigation {
	var out []datatypes.Mitigation
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		strategy, eff, found := strings.Cut(item, ":")
		m := datatypes.Mitigation{Strategy: strings.TrimSpace(strategy)}
		if found {
			if v, err := strconv.ParseFloat(strings.TrimSpace(eff), 64); err == nil {
				m.Effectiveness = v
			}
		}
		if m.Strategy != "" {
			out = append(out, m)
		}
	}
	return out
}
