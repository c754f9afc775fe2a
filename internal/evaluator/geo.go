package evaluator

import (
	"math"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"
)

// EarthRadiusMeters 球面地球半径（米）
const EarthRadiusMeters = 6371000.0

// Haversine 计算两点之间的大圆距离（米）
func Haversine(a, b models.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// 浮点误差可能使 h 略大于 1
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ClassifyDistance 按两级半径分类，每一级下界包含、上界不包含：
// d <= r1 正常；r1 < d <= r2 一级越界；d > r2 二级越界
func ClassifyDistance(distanceM, radiusLv1, radiusLv2 int) models.ReadingStatus {
	switch {
	case distanceM <= radiusLv1:
		return models.StatusNormal
	case distanceM <= radiusLv2:
		return models.StatusOutsideZone1
	default:
		return models.StatusOutsideZone2
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
