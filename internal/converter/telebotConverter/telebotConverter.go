package telebotConverter

import (
	"fmt"
	"strings"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

// SelectPortfolioUnique is the callback endpoint of portfolio buttons, the portfolio id travels as data.
const SelectPortfolioUnique = "select_portfolio"

// Money formats an amount in major units with the currency's own symbol and separators.
func Money(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

func signed(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + Money(amount, currency)
	}
	return Money(amount, currency)
}

func PortfoliosResponse(portfolios []model.Portfolio, selectedID string) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	if len(portfolios) == 0 {
		return "У вас пока нет портфелей. Создайте его командой /create", markup
	}

	var sb strings.Builder
	sb.WriteString("📁 Портфели:\n\n")

	rows := make([]tele.Row, 0, len(portfolios))
	for _, p := range portfolios {
		mark := ""
		if p.ID == selectedID {
			mark = " ✅"
		}
		sb.WriteString(fmt.Sprintf("▸ %s (%s)%s\n", p.Name, p.BaseCurrency, mark))
		rows = append(rows, markup.Row(markup.Data(p.Name, SelectPortfolioUnique, p.ID)))
	}
	sb.WriteString("\nВыберите портфель:")
	markup.Inline(rows...)

	return sb.String(), markup
}

func PortfolioSelectedResponse(portfolio model.Portfolio) string {
	return fmt.Sprintf("📊 Выбран портфель: %s\nБазовая валюта: %s", portfolio.Name, portfolio.BaseCurrency)
}

func HoldingsResponse(portfolio model.Portfolio, holdings []model.Holding) string {
	if len(holdings) == 0 {
		return fmt.Sprintf("📊 %s: нет открытых позиций", portfolio.Name)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 Портфель: %s\n\n", portfolio.Name))
	for i, h := range holdings {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, h.Ticker))
		if h.Name != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", h.Name))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("   ▸ Кол-во: %s шт.\n", h.Shares.String()))
		sb.WriteString(fmt.Sprintf("   ▸ Средняя цена: %s\n", Money(h.AvgCostPerShare, h.Currency)))
		sb.WriteString(fmt.Sprintf("   ▸ Стоимость: %s\n", Money(h.TotalCost, h.Currency)))
		sb.WriteString(fmt.Sprintf("   ▸ Вложено: %s\n", Money(h.TotalInvestedBase, portfolio.BaseCurrency)))
		if !h.RealizedPnL.IsZero() {
			sb.WriteString(fmt.Sprintf("   ▸ Реализ. P&L: %s\n", signed(h.RealizedPnL, h.Currency)))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func LotsResponse(ticker string, lots []model.Lot) string {
	if len(lots) == 0 {
		return fmt.Sprintf("По %s нет доступных лотов", ticker)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 Лоты %s:\n\n", ticker))
	for _, lot := range lots {
		sb.WriteString(fmt.Sprintf("▸ %s: %s из %s шт. по %s\n",
			lot.ExecutedAt.Format(time.DateOnly),
			lot.RemainingShares.String(),
			lot.Shares.String(),
			Money(lot.PricePerShare, lot.Currency),
		))
		sb.WriteString(fmt.Sprintf("   id: %s\n", lot.TransactionID))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func OptionHoldingsResponse(holdings []model.OptionHolding) string {
	if len(holdings) == 0 {
		return "Нет открытых опционных позиций"
	}

	var sb strings.Builder
	sb.WriteString("🎯 Опционы:\n\n")
	for _, h := range holdings {
		position := "long"
		if h.Position == model.Short {
			position = "short"
		}
		sb.WriteString(fmt.Sprintf("▸ %s %s %s %s, exp %s\n",
			h.Symbol,
			strings.ToUpper(string(h.OptionType)),
			Money(h.StrikePrice, h.Currency),
			position,
			h.ExpirationDate.Format(time.DateOnly),
		))
		sb.WriteString(fmt.Sprintf("   ▸ Контракты: %d, средняя премия %s\n", h.Contracts, Money(h.AvgPremium, h.Currency)))
		sb.WriteString(fmt.Sprintf("   ▸ Стоимость: %s\n", Money(h.TotalCost, h.Currency)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func StatsResponse(portfolio model.Portfolio, stats model.Stats) string {
	var sb strings.Builder
	cur := portfolio.BaseCurrency

	sb.WriteString(fmt.Sprintf("📈 Статистика: %s\n\n", portfolio.Name))
	sb.WriteString(fmt.Sprintf("Акции: %d позиций\n", stats.HoldingsCount))
	sb.WriteString(fmt.Sprintf("   ▸ Вложено: %s\n", Money(stats.TotalInvestedBase, cur)))
	sb.WriteString(fmt.Sprintf("   ▸ Реализ. P&L: %s\n\n", signed(stats.StockRealizedPnL, cur)))

	sb.WriteString(fmt.Sprintf("Опционы: %d позиций (long %d / short %d)\n", stats.TotalPositions, stats.LongPositions, stats.ShortPositions))
	sb.WriteString(fmt.Sprintf("   ▸ call %d, put %d\n", stats.Calls, stats.Puts))
	sb.WriteString(fmt.Sprintf("   ▸ Экспирация на этой неделе: %d\n", stats.ExpiringThisWeek))
	sb.WriteString(fmt.Sprintf("   ▸ Реализ. P&L: %s\n\n", signed(stats.OptionRealizedPnL, cur)))

	sb.WriteString(fmt.Sprintf("Итого реализ. P&L: %s", signed(stats.TotalRealizedPnL, cur)))
	return sb.String()
}

func StockTransactionResponse(ticker string, tx model.StockTransaction) string {
	verb := "Покупка"
	if tx.Type == model.Sell {
		verb = "Продажа"
	}
	return fmt.Sprintf("✅ %s %s: %s шт. по %s\nid: %s",
		verb,
		ticker,
		tx.Shares.String(),
		Money(tx.PricePerShare, tx.Currency),
		tx.ID,
	)
}

func ReportResponse(link string) string {
	return fmt.Sprintf("📄 Отчет готов: %s", link)
}
