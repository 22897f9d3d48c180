// Package notify renders Alerts into notifier-native payloads and fans
// delivery out to every configured channel.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/processor"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

var priorityEmoji = map[alert.Priority]string{
	alert.PriorityHigh:   "🔴",
	alert.PriorityMedium: "🟡",
	alert.PriorityLow:    "🔵",
}

var kindEmoji = map[alert.Kind]string{
	alert.KindFiling8K:     "📄",
	alert.KindFilingS3:     "💰",
	alert.KindForm4:        "👤",
	alert.KindFiling6K:     "📄",
	alert.KindFdaApproval:  "💊",
	alert.KindFdaPdufa:     "📅",
	alert.KindFdaTrial:     "🔬",
	alert.KindPressRelease: "📰",
	alert.KindPriceMove:    "📈",
}

var catalystLabels = map[string]string{
	processor.CatalystMergerAcquisition:   "M&A",
	processor.CatalystFDA:                 "FDA",
	processor.CatalystOfferingDilution:    "Offering",
	processor.CatalystContractPartnership: "Partnership",
	processor.CatalystInsiderActivity:     "Insider",
	processor.CatalystBankruptcy:          "Bankruptcy",
}

func catalystLabel(cat string) string {
	if l, ok := catalystLabels[cat]; ok {
		return l
	}
	return cat
}

// RenderChatMessage formats a as a Markdown chat message with a
// priority-emoji prefix, typed emoji for the event kind, an optional
// catalyst hashtag line, an optional AI analysis block, and a trailing
// timestamp/source line.
func RenderChatMessage(a alert.Alert, aiSuggestion string) string {
	emoji := priorityEmoji[a.Priority]
	if emoji == "" {
		emoji = "⚪"
	}
	typeIcon := kindEmoji[a.Kind]
	if typeIcon == "" {
		typeIcon = "📋"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s Priority*\n\n", emoji, strings.ToUpper(a.Priority.String()))
	fmt.Fprintf(&b, "%s *%s*\n", typeIcon, a.Title)

	if a.Ticker != "" {
		fmt.Fprintf(&b, "`%s` | %s\n", a.Ticker, a.Company)
	} else {
		fmt.Fprintf(&b, "%s\n", a.Company)
	}

	b.WriteString("\n📝 *Summary:*\n")
	b.WriteString(a.Summary)
	b.WriteString("\n\n")

	if cats := a.Catalysts(); len(cats) > 0 {
		tags := make([]string, len(cats))
		for i, c := range cats {
			tags[i] = "#" + catalystLabel(c)
		}
		fmt.Fprintf(&b, "🏷 %s\n\n", strings.Join(tags, " "))
	}

	if aiSuggestion != "" {
		b.WriteString("🤖 *AI Analysis:*\n")
		b.WriteString(aiSuggestion)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "📅 %s\n", a.Timestamp.Format(timeLayout))
	fmt.Fprintf(&b, "🔗 [View Source](%s)\n\n", a.URL)
	fmt.Fprintf(&b, "_Source: %s_", a.Source)

	return b.String()
}

var priorityEmailColor = map[alert.Priority]string{
	alert.PriorityHigh:   "#dc2626",
	alert.PriorityMedium: "#f59e0b",
	alert.PriorityLow:    "#3b82f6",
}

// RenderEmailMarkdown produces the markdown body handed to goldmark for
// the EmailNotifier's HTML rendering, plus the header color to use.
func RenderEmailMarkdown(a alert.Alert, aiSuggestion string) (body string, color string) {
	color = priorityEmailColor[a.Priority]
	if color == "" {
		color = "#6b7280"
	}

	ticker := "N/A"
	if a.Ticker != "" {
		ticker = "**" + a.Ticker + "**"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s PRIORITY**\n\n", strings.ToUpper(a.Priority.String()))
	fmt.Fprintf(&b, "## %s\n\n", a.Title)
	fmt.Fprintf(&b, "%s | %s\n\n", ticker, a.Company)
	fmt.Fprintf(&b, "**Summary:**\n\n%s\n\n", a.Summary)

	if cats := a.Catalysts(); len(cats) > 0 {
		labels := make([]string, len(cats))
		for i, c := range cats {
			labels[i] = catalystLabel(c)
		}
		fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(labels, " | "))
	}

	if aiSuggestion != "" {
		fmt.Fprintf(&b, "### 🤖 AI Analysis\n\n%s\n\n", aiSuggestion)
	}

	fmt.Fprintf(&b, "---\n\nSource: %s  \nTime: %s  \n[View Original Filing](%s)\n",
		a.Source, a.Timestamp.Format(timeLayout), a.URL)

	return b.String(), color
}

// RenderMarkdown formats a as a standalone Markdown document.
func RenderMarkdown(a alert.Alert, aiSuggestion string) string {
	ticker := "N/A"
	if a.Ticker != "" {
		ticker = "**" + a.Ticker + "**"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Priority\n\n", strings.ToUpper(a.Priority.String()))
	fmt.Fprintf(&b, "## %s\n\n", a.Title)
	fmt.Fprintf(&b, "**%s** | %s\n\n", ticker, a.Company)
	fmt.Fprintf(&b, "### Summary\n%s\n\n", a.Summary)

	if cats := a.Catalysts(); len(cats) > 0 {
		tags := make([]string, len(cats))
		for i, c := range cats {
			tags[i] = "#" + c
		}
		fmt.Fprintf(&b, "**Tags:** %s\n\n", strings.Join(tags, " "))
	}

	if aiSuggestion != "" {
		fmt.Fprintf(&b, "### 🤖 AI Analysis\n%s\n\n", aiSuggestion)
	}

	fmt.Fprintf(&b, "---\n*Source: %s* | *%s* | [View Source](%s)\n",
		a.Source, a.Timestamp.Format(timeLayout), a.URL)

	return b.String()
}

var priorityDiscordColor = map[alert.Priority]int{
	alert.PriorityHigh:   16711680,
	alert.PriorityMedium: 15105570,
	alert.PriorityLow:    3447003,
}

const discordDescriptionLimit = 4000

// RenderDiscordEmbed builds the {"embeds":[...]} JSON payload for a
// Discord webhook.
func RenderDiscordEmbed(a alert.Alert) ([]byte, error) {
	color, ok := priorityDiscordColor[a.Priority]
	if !ok {
		color = 10181038
	}

	fields := []map[string]any{
		{"name": "Company", "value": a.Company, "inline": true},
	}
	if a.Ticker != "" {
		fields = append(fields, map[string]any{"name": "Ticker", "value": a.Ticker, "inline": true})
	}
	fields = append(fields, map[string]any{"name": "Source", "value": a.Source, "inline": true})

	description := a.Summary
	if len(description) > discordDescriptionLimit {
		description = description[:discordDescriptionLimit]
	}

	embed := map[string]any{
		"title":       a.Title,
		"description": description,
		"url":         a.URL,
		"color":       color,
		"fields":      fields,
		"timestamp":   a.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}

	if cats := a.Catalysts(); len(cats) > 0 {
		embed["footer"] = map[string]any{"text": strings.Join(cats, " | ")}
	}

	return json.Marshal(map[string]any{"embeds": []any{embed}})
}

const slackSummaryLimit = 1000

// RenderSlackBlocks builds the {"blocks":[...]} JSON payload for a
// Slack webhook.
func RenderSlackBlocks(a alert.Alert, aiSuggestion string) ([]byte, error) {
	emoji := priorityEmoji[a.Priority]
	if emoji == "" {
		emoji = "⚪"
	}

	headerText := fmt.Sprintf("%s %s Priority Alert", emoji, strings.ToUpper(a.Priority.String()))

	titleLine := fmt.Sprintf("*%s*\n%s", a.Title, a.Company)
	if a.Ticker != "" {
		titleLine += fmt.Sprintf(" | `%s`", a.Ticker)
	}

	summary := a.Summary
	if len(summary) > slackSummaryLimit {
		summary = summary[:slackSummaryLimit]
	}

	blocks := []map[string]any{
		{"type": "header", "text": map[string]any{"type": "plain_text", "text": headerText}},
		{"type": "divider"},
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": titleLine}},
		{"type": "divider"},
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Summary:*\n%s", summary)}},
	}

	if aiSuggestion != "" {
		blocks = append(blocks,
			map[string]any{"type": "divider"},
			map[string]any{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("🤖 *AI Analysis:*\n%s", aiSuggestion)}},
		)
	}

	footer := fmt.Sprintf("%s | %s | <%s|View Source>", a.Source, a.Timestamp.Format(timeLayout), a.URL)
	blocks = append(blocks,
		map[string]any{"type": "divider"},
		map[string]any{"type": "context", "elements": []map[string]any{{"type": "mrkdwn", "text": footer}}},
	)

	return json.Marshal(map[string]any{"blocks": blocks})
}

var richCardLevelColor = map[alert.Level]string{
	alert.LevelCritical: "#991b1b",
	alert.LevelError:    "#dc2626",
	alert.LevelWarning:  "#f59e0b",
	alert.LevelSuccess:  "#16a34a",
	alert.LevelInfo:     "#3b82f6",
}

// RenderRichCard builds a generic colored interactive card payload from
// a rendered Template: a header colored by level, the body text, an
// ordered key/value field list, and an action button to the source
// link.
func RenderRichCard(t alert.Template) ([]byte, error) {
	color := richCardLevelColor[t.Level]
	if color == "" {
		color = "#6b7280"
	}

	fields := make([]map[string]any, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = map[string]any{"key": f.Key, "value": f.Value}
	}

	card := map[string]any{
		"header": map[string]any{
			"title": t.Title,
			"color": color,
			"level": string(t.Level),
		},
		"body":   t.Body,
		"fields": fields,
	}

	if t.Link != "" {
		linkText := t.LinkText
		if linkText == "" {
			linkText = "View source"
		}
		card["action"] = map[string]any{"label": linkText, "url": t.Link}
	}

	return json.Marshal(map[string]any{"card": card})
}

var feishuLevelColor = map[alert.Level]string{
	alert.LevelInfo:     "blue",
	alert.LevelSuccess:  "green",
	alert.LevelWarning:  "orange",
	alert.LevelError:    "red",
	alert.LevelCritical: "carmine",
}

// RenderFeishuCard builds an interactive Feishu/Lark card payload from a
// rendered Template.
func RenderFeishuCard(t alert.Template) ([]byte, error) {
	color := feishuLevelColor[t.Level]
	if color == "" {
		color = "blue"
	}

	elements := []map[string]any{
		{"tag": "div", "text": map[string]any{"tag": "lark_md", "content": t.Body}},
	}

	if len(t.Fields) > 0 {
		lines := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			lines[i] = fmt.Sprintf("**%s**: %s", f.Key, f.Value)
		}
		elements = append(elements, map[string]any{
			"tag":  "div",
			"text": map[string]any{"tag": "lark_md", "content": strings.Join(lines, "\n")},
		})
	}

	if t.Link != "" {
		linkText := t.LinkText
		if linkText == "" {
			linkText = "View source"
		}
		elements = append(elements, map[string]any{
			"tag": "action",
			"actions": []map[string]any{
				{"tag": "button", "text": map[string]any{"tag": "plain_text", "content": linkText}, "url": t.Link, "type": "primary"},
			},
		})
	}

	return json.Marshal(map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": t.Title},
				"template": color,
			},
			"elements": elements,
		},
	})
}

// TemplateFromAlert builds the canonical NotificationTemplate for a,
// used by RichCardNotifier and by WebhookNotifier's feishu format (whose
// result it passes to RenderFeishuCard).
func TemplateFromAlert(a alert.Alert, aiSuggestion string) alert.Template {
	level := alert.LevelInfo
	switch a.Priority {
	case alert.PriorityHigh:
		level = alert.LevelError
	case alert.PriorityMedium:
		level = alert.LevelWarning
	}

	fields := []alert.Field{
		{Key: "Company", Value: a.Company},
		{Key: "Source", Value: a.Source},
	}
	if a.Ticker != "" {
		fields = append(fields, alert.Field{Key: "Ticker", Value: a.Ticker})
	}
	if cats := a.Catalysts(); len(cats) > 0 {
		labels := make([]string, len(cats))
		for i, c := range cats {
			labels[i] = catalystLabel(c)
		}
		fields = append(fields, alert.Field{Key: "Catalysts", Value: strings.Join(labels, ", ")})
	}

	body := a.Summary
	if aiSuggestion != "" {
		body += "\n\n🤖 " + aiSuggestion
	}

	return alert.Template{
		Title:    a.Title,
		Body:     body,
		Level:    level,
		Link:     a.URL,
		LinkText: "View source",
		Fields:   fields,
	}
}
