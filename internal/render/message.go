// Package render turns a ranked grant list into chat message blocks and into
// CSV/HTML report files. All render functions are total over any input,
// including the empty list, and produce the same bytes for the same input.
package render

import (
	"fmt"
	"strings"
	"time"

	"grantwatch/internal/grant"
)

// MaxBlockLen is the per-message character budget imposed by the Telegram
// transport (its hard cap is 4096; 4000 leaves headroom for entity parsing).
const MaxBlockLen = 4000

// Blocks renders the full notification as ordered message blocks, each within
// MaxBlockLen characters. Callers must deliver block N before block N+1.
func Blocks(ranked []grant.Ranked, th grant.Thresholds, now time.Time) []string {
	parts := make([]string, 0, len(ranked)+1)
	parts = append(parts, header(len(ranked), th, now))
	for _, r := range ranked {
		parts = append(parts, Summary(r))
	}
	return Pack(parts, MaxBlockLen)
}

func header(count int, th grant.Thresholds, now time.Time) string {
	var b strings.Builder
	b.WriteString("🎯 <b>ГРАНТЫ ДЛЯ МГТУ ИМ. БАУМАНА</b>\n")
	fmt.Fprintf(&b, "📅 <i>Дата: %s</i>\n", now.Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "🔍 <i>Найдено: %d грантов</i>\n", count)
	fmt.Fprintf(&b, "💰 <i>Критерий: от %d млн руб./год</i>\n", th.MinAmount/1_000_000)
	fmt.Fprintf(&b, "⏰ <i>Срок подготовки: от %d дней</i>", th.MinDeadlineDays)
	return b.String()
}

// Summary renders one ranked grant as a multi-line HTML fragment.
func Summary(r grant.Ranked) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>#%d %s</b> %s\n", r.Position, r.Title, strings.Repeat("⭐", r.Rating))
	fmt.Fprintf(&b, "👤 <b>Организатор:</b> %s\n", r.Organizer)
	fmt.Fprintf(&b, "💰 <b>Финансирование:</b> %s\n", r.AmountText)
	fmt.Fprintf(&b, "📊 <b>Направление:</b> %s\n", r.Direction)
	if r.Description != "" {
		fmt.Fprintf(&b, "📝 <b>Описание:</b> %s\n", truncateRunes(r.Description, 150))
	}
	if r.DeadlineInfo != "" {
		fmt.Fprintf(&b, "⏰ <b>Срок подачи:</b> %s\n", r.DeadlineInfo)
	}
	if r.ProjectDuration != "" {
		fmt.Fprintf(&b, "⏳ <b>Срок реализации:</b> %s\n", r.ProjectDuration)
	}
	if r.Requirements != "" {
		fmt.Fprintf(&b, "⚡ <b>Требования:</b> %s\n", truncateRunes(r.Requirements, 100))
	}
	if r.Eligibility != "" {
		fmt.Fprintf(&b, "👥 <b>Участники:</b> %s\n", truncateRunes(r.Eligibility, 100))
	}
	if r.SourceURL != "" {
		fmt.Fprintf(&b, "🔗 <b>Ссылка:</b> %s\n", r.SourceURL)
	}
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━")
	return b.String()
}

// Pack joins parts into blocks not exceeding limit characters. A part is
// never split across blocks unless it alone exceeds the limit, in which case
// it is hard-cut at line boundaries and, failing that, at limit characters.
func Pack(parts []string, limit int) []string {
	var blocks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			blocks = append(blocks, current.String())
			current.Reset()
		}
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len([]rune(part)) > limit {
			flush()
			blocks = append(blocks, splitLong(part, limit)...)
			continue
		}
		joined := len([]rune(current.String())) + len([]rune(part)) + 2
		if current.Len() > 0 && joined > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(part)
	}
	flush()
	return blocks
}

// splitLong cuts an oversized part at line boundaries first, then by raw
// character count for any single line still over the limit.
func splitLong(part string, limit int) []string {
	var blocks []string
	var current strings.Builder
	for _, line := range strings.Split(part, "\n") {
		for len([]rune(line)) > limit {
			runes := []rune(line)
			if current.Len() > 0 {
				blocks = append(blocks, current.String())
				current.Reset()
			}
			blocks = append(blocks, string(runes[:limit]))
			line = string(runes[limit:])
		}
		joined := len([]rune(current.String())) + len([]rune(line)) + 1
		if current.Len() > 0 && joined > limit {
			blocks = append(blocks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}
	return blocks
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
