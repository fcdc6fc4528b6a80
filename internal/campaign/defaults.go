package campaign

// defaultVariables are the generator parameters defined for every campaign,
// in definition order. They describe a J/psi p-Pb production and are
// overridden by the configuration's variables.
var defaultVariables = [][2]string{
	{"VAR_GENPARAM_GENLIB_TYPE", "AliGenMUONlib::kJpsi"},
	{"VAR_GENPARAM_GENLIB_PARNAME", `"pPb 5.03"`},

	{"VAR_GENCORRHF_QUARK", "5"},
	{"VAR_GENCORRHF_ENERGY", "5"},

	{"VAR_GENPARAMCUSTOM_PDGPARTICLECODE", "443"},

	// J/psi p+Pb, muon_calo pass.
	{"VAR_GENPARAMCUSTOM_Y_P0", "4.08E5"},
	{"VAR_GENPARAMCUSTOM_Y_P1", "7.1E4"},
	{"VAR_GENPARAMCUSTOM_PT_P0", "1.13E9"},
	{"VAR_GENPARAMCUSTOM_PT_P1", "18.05"},
	{"VAR_GENPARAMCUSTOM_PT_P2", "2.05"},
	{"VAR_GENPARAMCUSTOM_PT_P3", "3.34"},

	// Single muons.
	{"VAR_GENPARAMCUSTOMSINGLE_PTMIN", "0.35"},
	{"VAR_GENPARAMCUSTOMSINGLE_PT_P0", "4.05962"},
	{"VAR_GENPARAMCUSTOMSINGLE_PT_P1", "1.0"},
	{"VAR_GENPARAMCUSTOMSINGLE_PT_P2", "2.46187"},
	{"VAR_GENPARAMCUSTOMSINGLE_PT_P3", "2.08644"},
	{"VAR_GENPARAMCUSTOMSINGLE_Y_P0", "0.729545"},
	{"VAR_GENPARAMCUSTOMSINGLE_Y_P1", "0.53837"},
	{"VAR_GENPARAMCUSTOMSINGLE_Y_P2", "0.141776"},
	{"VAR_GENPARAMCUSTOMSINGLE_Y_P3", "0.0130173"},
}

// Variables derived from the configuration.
const (
	varOCDBPath     = "VAR_OCDB_PATH"
	varOCDBSnapshot = "VAR_OCDB_SNAPSHOT"
	varGenerator    = "VAR_GENERATOR"
)
