package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"grantwatch/internal/pipeline"
	"grantwatch/internal/telegram"
)

const helpText = `📚 <b>СПРАВКА</b>

/check — запустить проверку грантов
/stats — статистика
/report_csv — скачать отчет CSV
/report_html — скачать отчет HTML
/set min_amount N — мин. сумма, руб./год
/set min_days N — мин. срок подачи, дней
/reset — очистить историю

Критерии по умолчанию: от 5 млн руб./год, от 14 дней.`

// pollUpdates runs the bot command loop over getUpdates long polling.
func (s *server) pollUpdates(ctx context.Context) {
	log.Printf("bot: polling for updates")
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := s.tg.GetUpdates(ctx, offset, 50)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("bot: get updates: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			s.handleCommand(ctx, u.Message)
		}
	}
}

func (s *server) handleCommand(ctx context.Context, msg *telegram.Message) {
	if !s.cfg.Admin(msg.From.ID) {
		s.reply(ctx, msg.Chat.ID, "❌ <b>Доступ запрещен</b>")
		return
	}

	cmd, args, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	// Commands in group chats arrive as /cmd@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		s.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"👋 <b>Привет, %s!</b>\n\n🤖 <b>Мониторинг грантов МГТУ им. Баумана</b>\n\nКоманда /check запускает проверку, /help — справка.",
			msg.From.FirstName))
	case "/help":
		s.reply(ctx, msg.Chat.ID, helpText)
	case "/check":
		s.handleCheck(ctx, msg.Chat.ID)
	case "/stats":
		s.handleStats(ctx, msg.Chat.ID)
	case "/report_csv":
		csvPath, _ := s.runner.ReportPaths()
		s.sendReport(ctx, msg.Chat.ID, csvPath, "grants_"+time.Now().Format("0201")+".csv")
	case "/report_html":
		_, htmlPath := s.runner.ReportPaths()
		s.sendReport(ctx, msg.Chat.ID, htmlPath, "grants_"+time.Now().Format("0201")+".html")
	case "/set":
		s.handleSet(ctx, msg.Chat.ID, args)
	case "/reset":
		s.handleReset(ctx, msg.Chat.ID)
	default:
		s.reply(ctx, msg.Chat.ID, "🤷 Неизвестная команда. /help — справка.")
	}
}

func (s *server) handleCheck(ctx context.Context, chatID int64) {
	s.reply(ctx, chatID, "⏳ <b>Запуск проверки...</b>")
	res, err := s.runner.Run(ctx, "command")
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		s.reply(ctx, chatID, "⏳ Проверка уже выполняется")
	case errors.Is(err, pipeline.ErrNoDestination):
		s.reply(ctx, chatID, "❌ <b>Канал доставки не настроен</b> (TELEGRAM_CHAT_ID)")
	case err != nil:
		s.reply(ctx, chatID, fmt.Sprintf("❌ <b>Ошибка:</b> %s", truncate(err.Error(), 150)))
	case res.Delivered == 0:
		s.reply(ctx, chatID, "ℹ️ <b>Новых грантов не найдено</b>")
	default:
		s.reply(ctx, chatID, fmt.Sprintf("✅ <b>Готово!</b>\nНайдено: %d грантов", res.Delivered))
	}
}

func (s *server) handleStats(ctx context.Context, chatID int64) {
	stats, err := s.st.Stats(ctx)
	if err != nil {
		s.reply(ctx, chatID, "❌ Статистика недоступна")
		return
	}
	lastRun := "Никогда"
	if stats.LastRunAt != nil {
		lastRun = stats.LastRunAt.Format("02.01.2006 15:04")
	}
	status := stats.LastRunStatus
	if status == "" {
		status = "N/A"
	}
	s.reply(ctx, chatID, fmt.Sprintf(
		"📊 <b>СТАТИСТИКА</b>\n\n📁 <b>Всего грантов в базе:</b> %d\n🕒 <b>Последний запуск:</b> %s\n🔍 <b>Найдено в последний раз:</b> %d\n✅ <b>Статус:</b> %s",
		stats.TotalHistoryEntries, lastRun, stats.LastRunNewCount, status))
}

func (s *server) handleSet(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		s.reply(ctx, chatID, "Использование: /set min_amount N или /set min_days N")
		return
	}
	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || value < 0 {
		s.reply(ctx, chatID, "❌ Значение должно быть неотрицательным числом")
		return
	}
	th, err := s.st.LoadThresholds(ctx)
	if err != nil {
		s.reply(ctx, chatID, "❌ Настройки недоступны")
		return
	}
	switch fields[0] {
	case "min_amount":
		th.MinAmount = value
	case "min_days":
		th.MinDeadlineDays = int(value)
	default:
		s.reply(ctx, chatID, "❌ Неизвестный параметр, доступны min_amount и min_days")
		return
	}
	if err := s.st.SaveThresholds(ctx, th); err != nil {
		s.reply(ctx, chatID, "❌ Не удалось сохранить настройки")
		return
	}
	s.reply(ctx, chatID, fmt.Sprintf(
		"✅ Сохранено: от %d руб./год, от %d дней", th.MinAmount, th.MinDeadlineDays))
}

func (s *server) handleReset(ctx context.Context, chatID int64) {
	if err := s.st.Reset(ctx); err != nil {
		s.reply(ctx, chatID, "❌ Не удалось очистить историю")
		return
	}
	log.Printf("bot: history reset")
	s.reply(ctx, chatID, "✅ История очищена, все гранты считаются новыми")
}

func (s *server) sendReport(ctx context.Context, chatID int64, path, filename string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.reply(ctx, chatID, "❌ Сначала запустите проверку (/check)")
		return
	}
	if err := s.tg.SendDocument(ctx, chatID, filename, data); err != nil {
		log.Printf("bot: send document: %v", err)
		s.reply(ctx, chatID, "❌ Не удалось отправить отчет")
	}
}

func (s *server) reply(ctx context.Context, chatID int64, text string) {
	if err := s.tg.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("bot: reply failed: %v", err)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
