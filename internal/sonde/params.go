package sonde

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parameter is one measured quantity the sonde can report.
type Parameter struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

// Label is the column/key name used in records, e.g. "ODO (%Sat)".
func (p Parameter) Label() string {
	if p.Unit == "" {
		return p.Name
	}
	return p.Name + " (" + p.Unit + ")"
}

var (
	ErrUnknownParameter = errors.New("sonde: unknown parameter id")
	ErrArityMismatch    = errors.New("sonde: telemetry arity mismatch")
)

var parameterTable = map[int]Parameter{
	1:   {1, "Temperature", "C"},
	2:   {2, "Temperature", "F"},
	3:   {3, "Temperature", "K"},
	4:   {4, "Conductivity", "mS/cm"},
	5:   {5, "Conductivity", "uS/cm"},
	6:   {6, "Specific Conductance", "mS/cm"},
	7:   {7, "Specific Conductance", "uS/cm"},
	10:  {10, "TDS", "g/L"},
	12:  {12, "Salinity", "PPT"},
	17:  {17, "pH", "mV"},
	18:  {18, "pH", ""},
	19:  {19, "ORP", "mV"},
	20:  {20, "Pressure", "psia"},
	21:  {21, "Pressure", "psig"},
	22:  {22, "Depth", "m"},
	23:  {23, "Depth", "ft"},
	28:  {28, "Battery", "V"},
	37:  {37, "Turbidity", "NTU"},
	47:  {47, "NH3 (Ammonia)", "mg/L"},
	48:  {48, "NH4 (Ammonium)", "mg/L"},
	51:  {51, "Date", "DDMMYY"},
	52:  {52, "Date", "MMDDYY"},
	53:  {53, "Date", "YYMMDD"},
	54:  {54, "Time", "HHMMSS"},
	95:  {95, "TDS", "kg/L"},
	101: {101, "NO3 (Nitrate)", "mV"},
	106: {106, "NO3 (Nitrate)", "mg/L"},
	108: {108, "NH4 (Ammonium)", "mV"},
	110: {110, "TDS", "mg/L"},
	112: {112, "Chloride", "mg/L"},
	145: {145, "Chloride", "mV"},
	190: {190, "TSS", "mg/L"},
	191: {191, "TSS", "g/L"},
	193: {193, "Chlorophyll", "ug/L"},
	194: {194, "Chlorophyll", "RFU"},
	201: {201, "PAR", "Channel 1"},
	202: {202, "PAR", "Channel 2"},
	204: {204, "Rhodamine", "ug/L"},
	211: {211, "ODO", "%Sat"},
	212: {212, "ODO", "mg/L"},
	214: {214, "ODO", "%Sat Local"},
	215: {215, "TAL-PC", "cells/mL"},
	216: {216, "BGA-PC", "RFU"},
	217: {217, "TAL-PE", "cells/mL"},
	218: {218, "BGA-PE", "RFU"},
	223: {223, "Turbidity", "FNU"},
	224: {224, "Turbidity", "Raw"},
	225: {225, "BGA-PC", "ug/L"},
	226: {226, "BGA-PE", "ug/L"},
	227: {227, "fDOM", "RFU"},
	228: {228, "fDOM", "QSU"},
	229: {229, "Wiper Position", "V"},
	230: {230, "External Power", "V"},
	231: {231, "BGA-PC", "Raw"},
	232: {232, "BGA-PE", "Raw"},
	233: {233, "fDOM", "Raw"},
	234: {234, "Chlorophyll", "Raw"},
	235: {235, "Potassium", "mV"},
	236: {236, "Potassium", "mg/L"},
	237: {237, "nLF Conductivity", "mS/cm"},
	238: {238, "nLF Conductivity", "uS/cm"},
	239: {239, "Wiper Peak Current", "mA"},
	240: {240, "Vertical Position", "m"},
	241: {241, "Vertical Position", "ft"},
	242: {242, "Chlorophyll", "cells/mL"},
}

// LookupParameter resolves id against the instrument's parameter table.
func LookupParameter(id int) (Parameter, error) {
	p, ok := parameterTable[id]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: %d", ErrUnknownParameter, id)
	}
	return p, nil
}

// Parameters is the ordered set agreed with one session. Every telemetry frame
// from that session has one value per entry, in this order.
type Parameters []Parameter

// ParseParameterIDs resolves a whitespace-separated ID list. Any unknown ID
// fails the whole list.
func ParseParameterIDs(text string) (Parameters, error) {
	fields := strings.Fields(text)
	out := make(Parameters, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, f)
		}
		p, err := LookupParameter(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IDs returns the space-separated ID list used by the `para` command.
func (ps Parameters) IDs() string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = strconv.Itoa(p.ID)
	}
	return strings.Join(ids, " ")
}

func (ps Parameters) Labels() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Label()
	}
	return out
}

// Reading is one labelled value from a frame.
type Reading struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Zip pairs each parameter with the frame value at the same position. The
// frame must have exactly len(ps) values.
func (ps Parameters) Zip(f Frame) ([]Reading, error) {
	if len(f.Values) != len(ps) {
		return nil, fmt.Errorf("%w: negotiated %d parameters, frame has %d values (raw=%q)",
			ErrArityMismatch, len(ps), len(f.Values), f.Raw)
	}
	out := make([]Reading, len(ps))
	for i, p := range ps {
		out[i] = Reading{Name: p.Label(), Value: f.Values[i]}
	}
	return out, nil
}
