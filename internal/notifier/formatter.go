package notifier

import (
	"fmt"
	"strings"
	"time"

	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// FormatDistribution formats a resolved draw into a Telegram message.
func FormatDistribution(evt *model.Distribution) string {
	var b strings.Builder
	switch evt.Status {
	case model.DistributionPaid:
		b.WriteString("🎉 <b>TaxPool 开奖</b>\n\n")
	case model.DistributionFallback:
		b.WriteString("🏦 <b>TaxPool 开奖 (无持有人)</b>\n\n")
	default:
		b.WriteString("❌ <b>TaxPool 派奖失败</b>\n\n")
	}
	b.WriteString(fmt.Sprintf("请求: <code>%s</code>\n", evt.RequestID))
	b.WriteString(fmt.Sprintf("获奖地址: <code>%s</code>\n", evt.Recipient))
	b.WriteString(fmt.Sprintf("金额: %s ETH\n", model.FormatEther(evt.Amount)))
	b.WriteString(fmt.Sprintf("时间: %s\n", evt.At.Format(timeLayout)))
	if evt.Status == model.DistributionReverted {
		b.WriteString("\n奖池保留，下次触发时重新抽取")
	}
	return b.String()
}

// FormatEmergencyWithdrawal formats a vault emergency withdrawal alert.
func FormatEmergencyWithdrawal(evt *model.EmergencyWithdrawal) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>金库紧急提取</b>\n\n")
	b.WriteString(fmt.Sprintf("发起人: <code>%s</code>\n", evt.Initiator))
	b.WriteString(fmt.Sprintf("接收地址: <code>%s</code>\n", evt.Recipient))
	b.WriteString(fmt.Sprintf("金额: %s ETH\n", model.FormatEther(evt.Amount)))
	b.WriteString(fmt.Sprintf("时间: %s\n", evt.At.Format(timeLayout)))
	return b.String()
}

// FormatStatus formats the ledger status for display.
func FormatStatus(s *ledger.Status) string {
	var b strings.Builder
	b.WriteString("📦 <b>奖池状态</b>\n\n")
	b.WriteString(fmt.Sprintf("奖池: %s ETH\n", model.FormatEther(s.TaxPool)))
	b.WriteString(fmt.Sprintf("总供应量: %s\n", model.FormatEther(s.TotalSupply)))
	b.WriteString(fmt.Sprintf("持有人数: %d\n", s.Holders))
	b.WriteString(fmt.Sprintf("金库余额: %s ETH\n", model.FormatEther(s.VaultBalance)))
	b.WriteString(fmt.Sprintf("预言机费用余额: %s\n", model.FormatEther(s.OracleFeeBalance)))
	b.WriteString(fmt.Sprintf("上次开奖: %s\n", s.LastDistribution.Format(timeLayout)))
	b.WriteString(fmt.Sprintf("下次开奖: %s\n", s.NextDistribution.Format(timeLayout)))
	if p := s.Pending; p != nil {
		b.WriteString(fmt.Sprintf("\n⏳ 等待随机数: <code>%s</code> (%s ETH, 自 %s)\n",
			p.RequestID, model.FormatEther(p.Snapshot), p.RequestedAt.Format(timeLayout)))
	}
	return b.String()
}

// FormatBalance formats one account's token balance.
func FormatBalance(account model.Address, tokens, share string) string {
	return fmt.Sprintf("💰 <code>%s</code>\n\n持有: %s\n中奖概率: %s", account, tokens, share)
}

// FormatHistory formats recent distributions, newest first.
func FormatHistory(items []model.Distribution) string {
	if len(items) == 0 {
		return "📜 暂无开奖记录"
	}
	var b strings.Builder
	b.WriteString("📜 <b>最近开奖</b>\n\n")
	for _, d := range items {
		b.WriteString(fmt.Sprintf("%s  %-8s %s ETH → <code>%s</code>\n",
			d.At.Format("01-02 15:04"), d.Status, model.FormatEther(d.Amount), d.Recipient))
	}
	return b.String()
}

// FormatUpkeep formats the outcome of a manual upkeep run.
func FormatUpkeep(requestID string, err error, next time.Time) string {
	if err != nil {
		return fmt.Sprintf("⏸ 未触发开奖: %v\n下次开奖: %s", err, next.Format(timeLayout))
	}
	return fmt.Sprintf("🎲 已请求随机数: <code>%s</code>", requestID)
}
