package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session lifecycle (info)
		"Session %s started with %d decoders and %d aux channels": "セッション %s を開始しました (デコーダ %d 個, 補助チャンネル %d 個)",
		"Session %s closed":                                       "セッション %s を終了しました",
		"Initialization failed: %v":                               "初期化に失敗しました: %v",

		// Transports
		"Listening for UDP on %s":                   "UDP %s で待ち受け中",
		"Listening for QUIC on %s (certificate %s)": "QUIC %s で待ち受け中 (証明書 %s)",
		"Accepted connection from %s":               "%s からの接続を受け付けました",
		"Connection from %s closed: %v":             "%s からの接続が閉じられました: %v",
		"Ignored datagram: %v":                      "データグラムを無視しました: %v",
		"Dropped frame set: %v":                     "フレームセットを破棄しました: %v",

		"Discarded incomplete frame %d for frame %d": "不完全なフレーム %d を破棄しました (新しいフレーム %d)",

		// MP4 replay
		"Loaded %s track %d: %dx%d, %d samples, %s": "%s トラック %d を読み込みました: %dx%d, %d サンプル, %s",
		"Restarting replay":                         "再生を最初からやり直します",

		// Decoders
		"Opened %s decoder with %s acceleration (%s)": "%s デコーダを %s アクセラレーションで開きました (%s)",
		"Opened %s decoder (%s)":                      "%s デコーダを開きました (%s)",
		"Dropped packet of %d bytes: %v":              "%d バイトのパケットを破棄しました: %v",

		"Channel %d decoder busy, draining before resubmit": "チャンネル %d のデコーダが処理中のため、取り出してから再投入します",
		"Channel %d dropped packet of %d bytes after drain": "チャンネル %d: 取り出し後も %d バイトのパケットを破棄しました",
		"Channel %d flush failed: %v":                       "チャンネル %d のフラッシュに失敗しました: %v",

		// Worker
		"Worker started":                   "ワーカーを開始しました",
		"Worker stopped":                   "ワーカーを停止しました",
		"Worker stopped on error: %v":      "ワーカーがエラーで停止しました: %v",
		"Aux channel %d decode failed: %v": "補助チャンネル %d のデコードに失敗しました: %v",
		"Audio write failed: %v":           "音声の書き込みに失敗しました: %v",
	})
}
