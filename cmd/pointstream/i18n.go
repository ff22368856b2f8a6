// Package main provides localization for the pointstream CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Decode depth video streams into colored point clouds.": "深度動画ストリームをデコードし、色付き点群に変換します。",

		// Run command
		"Replay finished":               "再生が終了しました",
		"Interrupted, shutting down...": "中断されました。終了しています...",

		"Read %d times, %d points, %d aux payloads": "読み取り %d 回、点 %d 個、補助データ %d 件",

		"Worker: %d iterations, %d timeouts, %d frames, %d clouds, audio %d written / %d dropped": "ワーカー: 反復 %d 回、タイムアウト %d 回、フレーム %d、点群 %d、音声 書き込み %d / 破棄 %d",

		"Exchange: %d publishes, %d reads, %d frames and %d aux payloads replaced unread": "受け渡し: 公開 %d 回、読み取り %d 回、未読のまま置き換えたフレーム %d、補助データ %d",

		// Probe command
		"Codec: %s":                   "コーデック: %s",
		"Size: %dx%d":                 "サイズ: %dx%d",
		"Fragmented: %t":              "フラグメント化: %t",
		"Samples: %d (%d sync)":       "サンプル数: %d (同期 %d)",
		"Duration: %s":                "再生時間: %s",
		"Cannot replay this file: %v": "このファイルは再生できません: %v",

		// Version command
		"pointstream version %s": "pointstream バージョン %s",
	})
}
