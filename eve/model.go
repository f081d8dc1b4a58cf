package eve

// Model identifies a chip generation. Values are ordered so that later generations compare greater.
type Model uint32

const (
	ModelFT800 Model = 0x10
	ModelFT801 Model = 0x11
	ModelFT810 Model = 0x20
	ModelFT811 Model = 0x21
	ModelFT812 Model = 0x22
	ModelFT813 Model = 0x23
	ModelBT815 Model = 0x30
	ModelBT816 Model = 0x31
	ModelBT817 Model = 0x40
	ModelBT818 Model = 0x41
)

var modelMapping = map[Model]string{
	ModelFT800: "FT800",
	ModelFT801: "FT801",
	ModelFT810: "FT810",
	ModelFT811: "FT811",
	ModelFT812: "FT812",
	ModelFT813: "FT813",
	ModelBT815: "BT815",
	ModelBT816: "BT816",
	ModelBT817: "BT817",
	ModelBT818: "BT818",
}

func (m Model) String() string {
	return modelMapping[m]
}

var modelsByName map[string]Model

func init() {
	modelsByName = make(map[string]Model, len(modelMapping))
	for model, name := range modelMapping {
		modelsByName[name] = model
	}
}

// ParseModel looks a model up by its part name, such as "BT815"
func ParseModel(name string) (Model, bool) {
	model, ok := modelsByName[name]
	return model, ok
}

// AtLeast reports whether m is the same generation as other or a later one
func (m Model) AtLeast(other Model) bool {
	return m >= other
}

// RAMGSize is the size in bytes of the chip's general purpose RAM
func (m Model) RAMGSize() int {
	if m.AtLeast(ModelFT810) {
		return 1024 * 1024
	}
	return 256 * 1024
}

// HasFlash reports whether the chip can address an attached flash chip
func (m Model) HasFlash() bool {
	return m.AtLeast(ModelBT815)
}

// HasCommandBuffer reports whether the chip accepts coprocessor commands through REG_CMDB_WRITE
func (m Model) HasCommandBuffer() bool {
	return m.AtLeast(ModelFT810)
}
