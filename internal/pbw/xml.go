package pbw

import "encoding/xml"

// hostDocument node/host 返回的文档
type hostDocument struct {
	XMLName        xml.Name      `xml:"host"`
	MaxFileSize    string        `xml:"max_file_size,attr"`
	UpdateInterval string        `xml:"update_interval,attr"`
	EmpiresReady   []gameElement `xml:"empires_ready>games>game"`
	HostReady      []gameElement `xml:"host_ready>games>game"`
	PlayersReady   []gameElement `xml:"players_ready>games>game"`
}

// playerDocument node/player 返回的文档
type playerDocument struct {
	XMLName        xml.Name      `xml:"games"`
	MaxFileSize    string        `xml:"max_file_size,attr"`
	UpdateInterval string        `xml:"update_interval,attr"`
	Games          []gameElement `xml:"game"`
}

// gameElement 主机与玩家列表共用的<game>元素
type gameElement struct {
	GameCode       string `xml:"game_code"`
	GamePassword   string `xml:"game_password"`
	EmpirePassword string `xml:"empire_password"`
	ModCode        string `xml:"mod_code"`
	GameType       string `xml:"game_type"`
	TurnMode       string `xml:"turn_mode"`
	Turn           string `xml:"turn"`
	TurnStartDate  string `xml:"turn_start_date"`
	NextTurnDate   string `xml:"next_turn_date"`
	PlrStatus      string `xml:"plr_status"`
	Number         string `xml:"number"`
	ShipsetCode    string `xml:"shipset_code"`
}
