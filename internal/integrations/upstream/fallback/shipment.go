package fallback

// ShipmentKind — FMS-эндпоинт поиска отгрузки.
type ShipmentKind string

const (
	ShipmentOne  ShipmentKind = "getOneShipment"
	ShipmentSo   ShipmentKind = "getSoInfo"
	ShipmentInfo ShipmentKind = "getShipmentInfo"
)

func (k ShipmentKind) Valid() bool {
	switch k {
	case ShipmentOne, ShipmentSo, ShipmentInfo:
		return true
	}
	return false
}

func (k ShipmentKind) Path() string { return "/fms/" + string(k) }

// Param — имя обязательного query-параметра.
func (k ShipmentKind) Param() string {
	if k == ShipmentSo {
		return "soNum"
	}
	return "shipmentId"
}
