// Package gamerelay 是一個以房間碼配對兩端的 WebSocket 中繼伺服器。
//
// 伺服器不理解遊戲內容，只負責三件事：讓一端建立房間、讓另一端用房間碼加入、
// 把房間內的訊息原封不動地轉送給其他成員（附上發送者 ID）。
//
// # 房間
//
// 房間由 4 到 8 位大寫英數字的房間碼識別，未指定時由伺服器生成 6 位碼：
//   - host：建立房間，發起者成為房主
//   - join：以房間碼加入；不帶房間碼時自動加入第一個有空位的房間
//   - leave：離開房間，剩餘成員收到 player_left，房間變空時立即刪除
//   - 房間預設容量 2（一位房主 + 一位玩家），可透過配置調整
//
// # 訊息
//
// 所有訊框都是 JSON 文字：
//
//	→ {"type":"host","name":"Alice"}
//	← {"type":"host_ok","room":"K7Q2ZD"}
//	→ {"type":"join","room":"K7Q2ZD","name":"Bob"}
//	← {"type":"join_ok","room":"K7Q2ZD"}
//	→ {"type":"room_message","data":{"x":1}}
//	← {"type":"room_message","data":{"x":1,"_from":"<sender id>"}}
//
// 解析失敗或未知類型的訊框會被靜默丟棄，連接不受影響。
//
// # 活性與回收
//
//   - LivenessMonitor 每 30 秒送出傳輸層 ping，連續兩個週期沒有 pong 的連接被終止
//   - RoomReaper 每 30 分鐘掃描一次，建立超過 2 小時的房間被關閉（room_closed/timeout）
//   - 收到 SIGINT/SIGTERM 時所有連接先收到 server_shutdown 再被關閉
//
// # HTTP 端點
//
//   - GET /ws：WebSocket 入口（根路徑的升級請求也會被接受）
//   - GET / 與 GET /health：{status, rooms, clients, uptime}
//   - GET /stats：包含連接數、轉送數與發送失敗數的統計
//
// # 配置
//
// 預設值 → config.yaml → .env → 環境變數（PORT、ROOM_CAPACITY、LOG_LEVEL、LOG_FORMAT）→ 命令列參數：
//   - -config：配置檔路徑（預設 config.yaml，不存在時略過）
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// # 架構
//
//   - Gateway：gorilla/websocket 的讀寫 goroutine，實作核心的 Channel 介面
//   - Router：唯一的訊息分派入口
//   - Registry：房間與成員關係，所有變更在同一把鎖內完成
//   - LivenessMonitor / RoomReaper：背景週期任務，由 errgroup 管理生命週期
//
// 不支援持久化與多實例部署：重啟後所有房間消失。
package gamerelay
