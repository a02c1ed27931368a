package models

// FieldInfo gives the long Spanish name and unit of an AEMET observation field.
type FieldInfo struct {
	Name string
	Unit string
}

// observationFields maps the short keys of the conventional observation
// endpoint to their long names and units.
var observationFields = map[string]FieldInfo{
	"idema":     {"idema", ""},
	"lon":       {"longitud", "grados"},
	"lat":       {"latitud", "grados"},
	"alt":       {"altitud", "m"},
	"ubi":       {"ubicacion", ""},
	"fint":      {"fecha_observacion", ""},
	"prec":      {"precipitacion", "mm"},
	"pacutp":    {"precipitacion_acumulada_disdrometro", "mm"},
	"pliqtp":    {"precipitacion_liquida", "mm"},
	"psolt":     {"precipitacion_solida", "mm"},
	"vmax":      {"velocidad_max_viento", "m_s"},
	"vv":        {"velocidad_media_viento", "m_s"},
	"vmaxu":     {"velocidad_max_viento_ultrasonico", "m_s"},
	"vvu":       {"velocidad_media_viento_ultrasonico", "m_s"},
	"dv":        {"direccion_media_viento", "grados"},
	"dvu":       {"direccion_media_viento_ultrasonico", "grados"},
	"dmax":      {"direccion_viento_max", "grados"},
	"dmaxu":     {"direccion_viento_max_ultrasonico", "grados"},
	"stdvv":     {"desviacion_estandar_velocidad_viento", "m_s"},
	"stddv":     {"desviacion_estandar_direccion_viento", "grados"},
	"stdvvu":    {"desviacion_estandar_velocidad_viento_ultrasonico", "m_s"},
	"stddvu":    {"desviacion_estandar_direccion_viento_ultrasonico", "grados"},
	"hr":        {"humedad_relativa", "%"},
	"inso":      {"duracion_insolacion", "h"},
	"pres":      {"presion", "hPa"},
	"pres_nmar": {"presion_nivel_mar", "hPa"},
	"ts":        {"temperatura_suelo", "grados_C"},
	"tss20cm":   {"temperatura_subsuelo_20cm", "grados_C"},
	"tss5cm":    {"temperatura_subsuelo_5cm", "grados_C"},
	"ta":        {"temperatura_aire", "grados_C"},
	"tpr":       {"temperatura_punto_rocio", "grados_C"},
	"tamin":     {"temperatura_minima", "grados_C"},
	"tamax":     {"temperatura_maxima", "grados_C"},
	"vis":       {"visibilidad", "km"},
	"geo700":    {"altura_nivel_700hPa", "m_geopotenciales"},
	"geo850":    {"altura_nivel_850hPa", "m_geopotenciales"},
	"geo925":    {"altura_nivel_925hPa", "m_geopotenciales"},
	"rviento":   {"recorrido_viento", "hm"},
	"nieve":     {"espesor_nieve", "cm"},
}

// HasObservationField reports whether key is a known observation field.
func HasObservationField(key string) bool {
	_, ok := observationFields[key]
	return ok
}

// ObservationFieldInfo returns the catalog entry for key.
func ObservationFieldInfo(key string) (FieldInfo, bool) {
	info, ok := observationFields[key]
	return info, ok
}

// RenameObservationField returns the stored column name for key: the short
// or long name followed by "_unit" when the field has a unit. Unknown keys
// are returned unchanged.
func RenameObservationField(key string, longNames bool) string {
	info, ok := observationFields[key]
	if !ok {
		return key
	}
	name := key
	if longNames {
		name = info.Name
	}
	if info.Unit == "" {
		return name
	}
	return name + "_" + info.Unit
}
